package logger

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// HTTPLogger appends one line per HTTP request to a plain access log file,
// independent of the structured slog output (which goes to stdout/JSON for
// aggregation). Kept deliberately dumb: no rotation, no buffering beyond the
// OS file handle, since DjinnBot's access-log volume is low and durability
// matters more than throughput here.
type HTTPLogger struct {
	mu   sync.Mutex
	file *os.File
	log  *slog.Logger
}

// NewHTTPLogger opens (creating if needed) the access log at HTTP_LOG_PATH,
// defaulting to "./http-access.log". Failure to open is non-fatal: requests
// are still served, just not logged to the file.
func NewHTTPLogger(log *slog.Logger) *HTTPLogger {
	path := os.Getenv("HTTP_LOG_PATH")
	if path == "" {
		path = "./http-access.log"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.With(Scope("http-logger")).Warn("could not open http access log, disabling file logging", Error(err))
		f = nil
	}

	return &HTTPLogger{file: f, log: log.With(Scope("http-logger"))}
}

// LogRequest appends a single access-log line. Safe for concurrent use.
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	if h.file == nil {
		return
	}

	line := fmt.Sprintf("%s %s %s %s %d %s %q %s\n",
		time.Now().UTC().Format(time.RFC3339), ip, method, uri, status, latency, userAgent, requestID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.file.WriteString(line); err != nil {
		h.log.Warn("failed to write http access log line", Error(err))
	}
}

// Close releases the underlying file handle.
func (h *HTTPLogger) Close() error {
	if h.file == nil {
		return nil
	}
	return h.file.Close()
}
