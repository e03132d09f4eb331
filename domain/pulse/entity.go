package pulse

import (
	"time"

	"github.com/uptrace/bun"
)

// Global setting keys read on demand from the global_settings table
// (spec §4.7 "Guardrails", §9 "no in-memory cache").
const (
	SettingPulseIntervalMinutes       = "pulseIntervalMinutes"
	SettingWakeEnabled                = "wakeEnabled"
	SettingWakeCooldownSec            = "wakeCooldownSec"
	SettingMaxWakesPerDay             = "maxWakesPerDay"
	SettingMaxWakesPerPairPerDay      = "maxWakesPerPairPerDay"
	SettingMaxConcurrentPulseSessions = "maxConcurrentPulseSessions"
)

// Defaults applied when a setting row is absent.
const (
	DefaultPulseIntervalMinutes       = 10
	DefaultWakeEnabled                = true
	DefaultWakeCooldownSec            = 60
	DefaultMaxWakesPerDay             = 200
	DefaultMaxWakesPerPairPerDay      = 50
	DefaultMaxConcurrentPulseSessions = 5
)

// Trigger types a wake can originate from (spec §4.7 "Three trigger types").
const (
	TriggerPeriodic   = "periodic"
	TriggerTransition = "transition"
	TriggerExternal   = "external"
)

// Guardrails is the snapshot of global_settings consulted on every Wake call
// (spec §4.7 "Guardrails").
type Guardrails struct {
	WakeEnabled                bool
	WakeCooldownSec            int
	MaxWakesPerDay             int
	MaxWakesPerPairPerDay      int
	MaxConcurrentPulseSessions int
}

// Wake is a row in pulse_wakes, recording one successful PULSE_TRIGGERED
// dispatch for guardrail accounting (spec §3, §4.7).
type Wake struct {
	bun.BaseModel `bun:"table:pulse_wakes,alias:pw"`

	ID            string    `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	SourceAgentID *string   `bun:"source_agent_id" json:"source_agent_id,omitempty"`
	TargetAgentID string    `bun:"target_agent_id,notnull" json:"target_agent_id"`
	Reason        string    `bun:"reason,notnull" json:"reason"`
	WokenAt       time.Time `bun:"woken_at,notnull,default:now()" json:"woken_at"`
}

// TriggerRequest is the body external webhooks/chat post to fan out a wake
// directly (spec §4.7 "External").
type TriggerRequest struct {
	SourceAgentID *string `json:"source_agent_id,omitempty"`
	TargetAgentID string  `json:"target_agent_id" validate:"required"`
	Reason        string  `json:"reason" validate:"required"`
}
