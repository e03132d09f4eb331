package pulse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestService() *Service {
	return &Service{activeSessions: make(map[string]time.Time)}
}

func TestAcquireSessionRespectsCap(t *testing.T) {
	s := newTestService()
	g := Guardrails{MaxConcurrentPulseSessions: 2, WakeCooldownSec: 60}

	assert.True(t, s.acquireSession("shigeo", g))
	assert.True(t, s.acquireSession("chieko", g))
	assert.False(t, s.acquireSession("yukihiro", g))
}

func TestAcquireSessionReusesExistingAgentSlot(t *testing.T) {
	s := newTestService()
	g := Guardrails{MaxConcurrentPulseSessions: 1, WakeCooldownSec: 60}

	assert.True(t, s.acquireSession("shigeo", g))
	assert.True(t, s.acquireSession("shigeo", g))
}

func TestAcquireSessionExpiresOldSlots(t *testing.T) {
	s := newTestService()
	g := Guardrails{MaxConcurrentPulseSessions: 1, WakeCooldownSec: 60}

	s.activeSessions["shigeo"] = time.Now().Add(-time.Hour)
	assert.True(t, s.acquireSession("chieko", g))
}
