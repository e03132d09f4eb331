package pulse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/djinnbot/core/pkg/logger"
)

// cronScheduler manages scheduled wake tasks using robfig/cron. It supports
// interval-based scheduling only (adapted from domain/scheduler's cron
// wrapper for the single periodic-wake job); cron expressions are not
// accepted.
type cronScheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	tasks   map[string]cron.EntryID
	mu      sync.RWMutex
	running bool
}

func newCronScheduler(log *slog.Logger) *cronScheduler {
	c := cron.New(cron.WithSeconds())
	return &cronScheduler{
		cron:  c,
		log:   log.With(logger.Scope("pulse.cron")),
		tasks: make(map[string]cron.EntryID),
	}
}

func (s *cronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("pulse scheduler started", slog.Int("tasks", len(s.tasks)))
	return nil
}

func (s *cronScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("pulse scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("pulse scheduler stop timeout")
	}
	s.running = false
	return nil
}

// taskFunc is the function signature for a scheduled wake task.
type taskFunc func(ctx context.Context) error

// AddIntervalTask adds a task that runs at a fixed interval, replacing any
// existing task registered under the same name.
func (s *cronScheduler) AddIntervalTask(name string, interval time.Duration, task taskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
	}

	schedule := "@every " + interval.String()
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}

	s.tasks[name] = entryID
	s.log.Info("added interval task", slog.String("name", name), slog.Duration("interval", interval))
	return nil
}

func (s *cronScheduler) runTask(name string, task taskFunc) {
	start := time.Now()
	s.log.Debug("running pulse task", slog.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := task(ctx); err != nil {
		s.log.Error("pulse task failed", slog.String("name", name), logger.Error(err), slog.Duration("duration", time.Since(start)))
		return
	}
	s.log.Debug("pulse task completed", slog.String("name", name), slog.Duration("duration", time.Since(start)))
}
