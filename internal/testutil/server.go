package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/djinnbot/core/domain/dependencies"
	"github.com/djinnbot/core/domain/githubapp"
	"github.com/djinnbot/core/domain/health"
	"github.com/djinnbot/core/domain/projects"
	"github.com/djinnbot/core/domain/pulse"
	"github.com/djinnbot/core/domain/readiness"
	"github.com/djinnbot/core/domain/runs"
	"github.com/djinnbot/core/domain/swarm"
	"github.com/djinnbot/core/domain/tasks"
	"github.com/djinnbot/core/domain/workspace"
	"github.com/djinnbot/core/internal/config"
	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/auth"
	"github.com/djinnbot/core/pkg/eventbus"
)

// TestServer wraps an Echo instance for testing.
type TestServer struct {
	Echo           *echo.Echo
	TestDB         *TestDB
	DB             bun.IDB
	Config         *config.Config
	Log            *slog.Logger
	AuthMiddleware *auth.Middleware
}

// NewTestServer creates a test server with all routes registered.
func NewTestServer(testDB *TestDB) *TestServer {
	return newTestServerWithDB(testDB, testDB.GetDB())
}

// newTestServerWithDB creates a test server with a specific DB connection,
// wiring the same dependency graph as cmd/server/main.go by hand (no fx
// container in tests).
func newTestServerWithDB(testDB *TestDB, db bun.IDB) *TestServer {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := testDB.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	authMiddleware := auth.NewMiddleware(log)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.EventBus.Addr,
		Password: cfg.EventBus.Password,
		DB:       cfg.EventBus.DB,
	})
	bus := eventbus.NewBus(rdb, cfg, log)

	// health
	healthHandler := health.NewHandler(testDB.Pool, cfg)
	health.RegisterRoutes(e, healthHandler)

	// projects
	projectsRepo := projects.NewRepository(db, log)

	// tasks <-> readiness <-> dependencies, wired the same one-directional
	// way fx does via asReadinessPropagator/asDependencyResolver/asTaskStore.
	tasksRepo := tasks.NewRepository(db, log)
	depsRepo := dependencies.NewRepository(db, log)
	depsSvc := dependencies.NewService(depsRepo, log)
	readinessSvc := readiness.NewService(tasksRepo, depsRepo, bus, log)
	tasksSvc := tasks.NewService(tasksRepo, projectsRepo, readinessSvc, depsSvc, bus, log)

	projectsSvc := projects.NewService(projectsRepo, tasksSvc, log)
	projectsHandler := projects.NewHandler(projectsSvc)
	projects.RegisterRoutes(e, projectsHandler, authMiddleware)

	tasksHandler := tasks.NewHandler(tasksSvc)
	tasks.RegisterRoutes(e, tasksHandler, authMiddleware)

	depsHandler := dependencies.NewHandler(depsSvc)
	dependencies.RegisterRoutes(e, depsHandler, authMiddleware)

	// runs
	runsRepo := runs.NewRepository(db, log)
	runsSvc := runs.NewService(runsRepo, tasksRepo, projectsRepo, readinessSvc, bus, log)
	runsHandler := runs.NewHandler(runsSvc)
	runs.RegisterRoutes(e, runsHandler, authMiddleware)

	// pulse
	pulseRepo := pulse.NewRepository(db, log)
	pulseSvc := pulse.NewService(pulseRepo, bus, log)
	pulseHandler := pulse.NewHandler(pulseSvc)
	pulse.RegisterRoutes(e, pulseHandler, authMiddleware)

	// swarm
	swarmSvc := swarm.NewService(tasksRepo, depsSvc, projectsRepo, bus, log)
	swarmHandler := swarm.NewHandler(swarmSvc)
	swarm.RegisterRoutes(e, swarmHandler, authMiddleware)

	// githubapp
	githubRepo := githubapp.NewRepository(db, log)
	githubCrypto, _ := githubapp.NewCrypto(cfg.GitHub.AppEncryptionKey)
	githubTokenSvc := githubapp.NewTokenService(githubCrypto, log)
	githubSvc := githubapp.NewService(githubRepo, githubCrypto, githubTokenSvc, log)
	githubHandler := githubapp.NewHandler(githubSvc, log)
	githubapp.RegisterRoutes(e, githubHandler, authMiddleware)

	// workspace
	taskStore := tasks.NewTaskStore(tasksRepo)
	workspaceSvc := workspace.NewService(cfg, githubSvc, projectsRepo, taskStore, rdb, bus, log)
	workspaceHandler := workspace.NewHandler(workspaceSvc, log)
	workspace.RegisterRoutes(e, workspaceHandler, authMiddleware)

	return &TestServer{
		Echo:           e,
		TestDB:         testDB,
		DB:             db,
		Config:         cfg,
		Log:            log,
		AuthMiddleware: authMiddleware,
	}
}

// Request performs an HTTP request against the test server.
func (s *TestServer) Request(method, path string, opts ...RequestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)

	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// GET performs a GET request.
func (s *TestServer) GET(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodGet, path, opts...)
}

// POST performs a POST request.
func (s *TestServer) POST(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodPost, path, opts...)
}

// PUT performs a PUT request.
func (s *TestServer) PUT(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodPut, path, opts...)
}

// DELETE performs a DELETE request.
func (s *TestServer) DELETE(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodDelete, path, opts...)
}

// PATCH performs a PATCH request.
func (s *TestServer) PATCH(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodPatch, path, opts...)
}

// RequestOption modifies an HTTP request.
type RequestOption func(*http.Request)

// WithHeader adds a header to the request.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithAuth adds an Authorization header.
func WithAuth(token string) RequestOption {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithProjectID adds an X-Project-ID header.
func WithProjectID(projectID string) RequestOption {
	return WithHeader("X-Project-ID", projectID)
}

// WithJSON adds Content-Type: application/json header.
func WithJSON() RequestOption {
	return WithHeader("Content-Type", "application/json")
}

// WithBody adds a request body.
func WithBody(body string) RequestOption {
	return func(r *http.Request) {
		r.Body = io.NopCloser(strings.NewReader(body))
		r.ContentLength = int64(len(body))
	}
}

// WithRawAuth adds a raw Authorization header value.
func WithRawAuth(value string) RequestOption {
	return WithHeader("Authorization", value)
}

// WithJSONBody sets Content-Type to application/json and marshals the body to JSON.
func WithJSONBody(body any) RequestOption {
	return func(r *http.Request) {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		r.Header.Set("Content-Type", "application/json")
		r.Body = io.NopCloser(strings.NewReader(string(data)))
		r.ContentLength = int64(len(data))
	}
}

// MultipartForm represents a multipart form for testing file uploads.
type MultipartForm struct {
	body        *bytes.Buffer
	writer      *multipart.Writer
	contentType string
}

// NewMultipartForm creates a new multipart form builder.
func NewMultipartForm() *MultipartForm {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	return &MultipartForm{
		body:   body,
		writer: writer,
	}
}

// AddField adds a regular field to the multipart form.
func (m *MultipartForm) AddField(fieldName, value string) error {
	return m.writer.WriteField(fieldName, value)
}

// Close finalizes the multipart form and returns the content type.
func (m *MultipartForm) Close() string {
	m.writer.Close()
	m.contentType = m.writer.FormDataContentType()
	return m.contentType
}

// WithMultipartForm adds a multipart form body to the request.
func WithMultipartForm(form *MultipartForm) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Content-Type", form.contentType)
		r.Body = io.NopCloser(bytes.NewReader(form.body.Bytes()))
		r.ContentLength = int64(form.body.Len())
	}
}
