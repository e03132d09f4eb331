package pulse

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/djinnbot/core/pkg/eventbus"
	"github.com/djinnbot/core/pkg/logger"
)

// knownAgents is the same documented escape hatch used by domain/tasks for
// role-to-agent fallbacks (spec §9): the periodic trigger has no per-project
// agent directory to enumerate, so it wakes this fixed roster.
var knownAgents = []string{"shigeo", "chieko", "yukihiro"}

// Service is the PulseScheduler (spec §4.7): it wakes agents periodically
// and in response to task transitions or external triggers, enforcing
// guardrails read live from global_settings on every call.
type Service struct {
	repo *Repository
	bus  *eventbus.Bus
	cron *cronScheduler
	log  *slog.Logger

	mu             sync.Mutex
	activeSessions map[string]time.Time
}

// NewService creates a new pulse service.
func NewService(repo *Repository, bus *eventbus.Bus, log *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		bus:            bus,
		cron:           newCronScheduler(log),
		log:            log.With(logger.Scope("pulse.service")),
		activeSessions: make(map[string]time.Time),
	}
}

// guardrails loads the current guardrail snapshot from global_settings,
// falling back to defaults for any missing key (spec §4.7, §9 "no
// in-memory cache" — read fresh on every Wake call).
func (s *Service) guardrails(ctx context.Context) Guardrails {
	g := Guardrails{
		WakeEnabled:                DefaultWakeEnabled,
		WakeCooldownSec:            DefaultWakeCooldownSec,
		MaxWakesPerDay:             DefaultMaxWakesPerDay,
		MaxWakesPerPairPerDay:      DefaultMaxWakesPerPairPerDay,
		MaxConcurrentPulseSessions: DefaultMaxConcurrentPulseSessions,
	}

	if raw, err := s.repo.GetSetting(ctx, SettingWakeEnabled); err == nil && raw != nil {
		json.Unmarshal(raw, &g.WakeEnabled)
	}
	if raw, err := s.repo.GetSetting(ctx, SettingWakeCooldownSec); err == nil && raw != nil {
		json.Unmarshal(raw, &g.WakeCooldownSec)
	}
	if raw, err := s.repo.GetSetting(ctx, SettingMaxWakesPerDay); err == nil && raw != nil {
		json.Unmarshal(raw, &g.MaxWakesPerDay)
	}
	if raw, err := s.repo.GetSetting(ctx, SettingMaxWakesPerPairPerDay); err == nil && raw != nil {
		json.Unmarshal(raw, &g.MaxWakesPerPairPerDay)
	}
	if raw, err := s.repo.GetSetting(ctx, SettingMaxConcurrentPulseSessions); err == nil && raw != nil {
		json.Unmarshal(raw, &g.MaxConcurrentPulseSessions)
	}
	return g
}

// pulseInterval loads pulseIntervalMinutes, falling back to the default.
func (s *Service) pulseInterval(ctx context.Context) time.Duration {
	minutes := DefaultPulseIntervalMinutes
	if raw, err := s.repo.GetSetting(ctx, SettingPulseIntervalMinutes); err == nil && raw != nil {
		json.Unmarshal(raw, &minutes)
	}
	if minutes <= 0 {
		minutes = DefaultPulseIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Wake is the single entry point for all three trigger types. It checks
// every guardrail live, and on any violation silently suppresses the wake
// (logged, never an error) rather than returning one (spec §4.7).
func (s *Service) Wake(ctx context.Context, sourceAgentID *string, targetAgentID, reason, trigger string) error {
	g := s.guardrails(ctx)

	if !g.WakeEnabled {
		s.log.Info("wake suppressed: wakeEnabled is false", slog.String("target", targetAgentID))
		return nil
	}

	last, err := s.repo.LastWakeFor(ctx, targetAgentID)
	if err != nil {
		return err
	}
	if !last.IsZero() && time.Since(last) < time.Duration(g.WakeCooldownSec)*time.Second {
		s.log.Info("wake suppressed: cooldown active",
			slog.String("target", targetAgentID), slog.Duration("elapsed", time.Since(last)))
		return nil
	}

	since := time.Now().Add(-24 * time.Hour)
	dayCount, err := s.repo.CountWakesSince(ctx, targetAgentID, since)
	if err != nil {
		return err
	}
	if dayCount >= g.MaxWakesPerDay {
		s.log.Info("wake suppressed: maxWakesPerDay reached",
			slog.String("target", targetAgentID), slog.Int("count", dayCount))
		return nil
	}

	if sourceAgentID != nil {
		pairCount, err := s.repo.CountPairWakesSince(ctx, *sourceAgentID, targetAgentID, since)
		if err != nil {
			return err
		}
		if pairCount >= g.MaxWakesPerPairPerDay {
			s.log.Info("wake suppressed: maxWakesPerPairPerDay reached",
				slog.String("source", *sourceAgentID), slog.String("target", targetAgentID))
			return nil
		}
	}

	if !s.acquireSession(targetAgentID, g) {
		s.log.Info("wake suppressed: maxConcurrentPulseSessions reached", slog.String("target", targetAgentID))
		return nil
	}

	w := &Wake{
		SourceAgentID: sourceAgentID,
		TargetAgentID: targetAgentID,
		Reason:        reason,
	}
	if err := s.repo.RecordWake(ctx, w); err != nil {
		return err
	}

	s.bus.Publish(ctx, eventbus.StreamGlobal, "PULSE_TRIGGERED", map[string]any{
		"source_agent_id": sourceAgentID,
		"target_agent_id": targetAgentID,
		"reason":          reason,
		"trigger":         trigger,
	})
	s.log.Info("wake dispatched",
		slog.String("target", targetAgentID), slog.String("reason", reason), slog.String("trigger", trigger))
	return nil
}

// acquireSession enforces maxConcurrentPulseSessions as a semaphore over the
// wakeCooldownSec window: a target counts as "occupying a session" until its
// own cooldown expires, since the core has no visibility into when the
// woken agent's actual runtime session ends.
func (s *Service) acquireSession(targetAgentID string, g Guardrails) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for agent, expiry := range s.activeSessions {
		if now.After(expiry) {
			delete(s.activeSessions, agent)
		}
	}
	if _, already := s.activeSessions[targetAgentID]; !already && len(s.activeSessions) >= g.MaxConcurrentPulseSessions {
		return false
	}
	s.activeSessions[targetAgentID] = now.Add(time.Duration(g.WakeCooldownSec) * time.Second)
	return true
}

// TransitionTrigger wakes the agent a WorkflowPolicy stage transition maps
// to (spec §4.7 "Transition-triggered"; the mapping itself lives in
// domain/tasks.roleAgentForStage, which calls this indirectly via
// PULSE_TRIGGERED — this method exists for direct callers, e.g. tests).
func (s *Service) TransitionTrigger(ctx context.Context, targetAgentID, reason string) error {
	return s.Wake(ctx, nil, targetAgentID, reason, TriggerTransition)
}

// ExternalTrigger wakes an agent from a webhook or chat message
// (spec §4.7 "External").
func (s *Service) ExternalTrigger(ctx context.Context, req TriggerRequest) error {
	return s.Wake(ctx, req.SourceAgentID, req.TargetAgentID, req.Reason, TriggerExternal)
}

// runPeriodic is the cron callback: wakes every enabled agent on the known
// roster (spec §4.7 "Periodic").
func (s *Service) runPeriodic(ctx context.Context) error {
	for _, agentID := range knownAgents {
		if err := s.Wake(ctx, nil, agentID, "periodic pulse", TriggerPeriodic); err != nil {
			return err
		}
	}
	return nil
}

// Start registers the periodic wake task and starts the cron scheduler.
func (s *Service) Start(ctx context.Context) error {
	interval := s.pulseInterval(ctx)
	if err := s.cron.AddIntervalTask("periodic-pulse", interval, s.runPeriodic); err != nil {
		return err
	}
	return s.cron.Start(ctx)
}

// Stop stops the cron scheduler.
func (s *Service) Stop(ctx context.Context) error {
	return s.cron.Stop(ctx)
}
