package testutil

import (
	"context"
	"io"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/domain/projects"
)

// discardLogger is used by fixture helpers that don't need to surface their
// own logs — the test's assertions are the signal, not the log output.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// CreateTestProject creates a project directly through the repository layer
// and returns its ID. Used by BaseSuite to seed a default fixture without
// going through HTTP for in-process tests.
func CreateTestProject(ctx context.Context, db bun.IDB, name string) (string, error) {
	repo := projects.NewRepository(db, discardLogger)
	svc := projects.NewService(repo, noopColumnBootstrapper{}, discardLogger)

	project, err := svc.Create(ctx, projects.CreateProjectRequest{Name: name})
	if err != nil {
		return "", err
	}
	return project.ID, nil
}

// noopColumnBootstrapper satisfies projects.ColumnBootstrapper without
// touching the kanban-columns table, which fixtures don't need populated.
type noopColumnBootstrapper struct{}

func (noopColumnBootstrapper) BootstrapDefaultColumns(ctx context.Context, tx bun.Tx, projectID string, semantics projects.StatusSemantics) error {
	return nil
}
