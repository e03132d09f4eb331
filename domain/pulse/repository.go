package pulse

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/djinnbot/core/pkg/apperror"
	"github.com/djinnbot/core/pkg/logger"
)

// Repository handles database operations for global_settings and pulse_wakes.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new pulse repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("pulse.repo")),
	}
}

// GetSetting returns the raw jsonb value stored under key, or (nil, nil) if
// no row exists.
func (r *Repository) GetSetting(ctx context.Context, key string) (json.RawMessage, error) {
	var row struct {
		Value json.RawMessage `bun:"value"`
	}
	err := r.db.NewSelect().Table("global_settings").Column("value").Where("key = ?", key).Scan(ctx, &row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.log.Error("failed to get setting", logger.Error(err), slog.String("key", key))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return row.Value, nil
}

// PutSetting upserts a jsonb setting value.
func (r *Repository) PutSetting(ctx context.Context, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return apperror.ErrBadRequest.WithInternal(err)
	}
	_, err = r.db.NewRaw(`
		INSERT INTO global_settings (key, value, updated_at)
		VALUES (?, ?, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, valueJSON).Exec(ctx)
	if err != nil {
		r.log.Error("failed to put setting", logger.Error(err), slog.String("key", key))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// RecordWake inserts a pulse_wakes row after a successful dispatch.
func (r *Repository) RecordWake(ctx context.Context, w *Wake) error {
	_, err := r.db.NewInsert().Model(w).Returning("*").Exec(ctx)
	if err != nil {
		r.log.Error("failed to record wake", logger.Error(err))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// LastWakeFor returns the most recent wake time for targetAgentID, or the
// zero time if the agent has never been woken (used for cooldown checks).
func (r *Repository) LastWakeFor(ctx context.Context, targetAgentID string) (time.Time, error) {
	var w Wake
	err := r.db.NewSelect().Model(&w).
		Where("target_agent_id = ?", targetAgentID).
		Order("woken_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		r.log.Error("failed to get last wake", logger.Error(err))
		return time.Time{}, apperror.ErrDatabase.WithInternal(err)
	}
	return w.WokenAt, nil
}

// CountWakesSince returns how many times targetAgentID was woken since since.
func (r *Repository) CountWakesSince(ctx context.Context, targetAgentID string, since time.Time) (int, error) {
	count, err := r.db.NewSelect().Model((*Wake)(nil)).
		Where("target_agent_id = ?", targetAgentID).
		Where("woken_at >= ?", since).
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count wakes", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}

// CountPairWakesSince returns how many times sourceAgentID woke
// targetAgentID since since.
func (r *Repository) CountPairWakesSince(ctx context.Context, sourceAgentID, targetAgentID string, since time.Time) (int, error) {
	count, err := r.db.NewSelect().Model((*Wake)(nil)).
		Where("source_agent_id = ?", sourceAgentID).
		Where("target_agent_id = ?", targetAgentID).
		Where("woken_at >= ?", since).
		Count(ctx)
	if err != nil {
		r.log.Error("failed to count pair wakes", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	return count, nil
}
