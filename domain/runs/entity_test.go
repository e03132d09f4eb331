package runs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopStateAdvanceSkipsCompleted(t *testing.T) {
	ls := &LoopState{
		Items: []any{
			map[string]any{"status": "completed"},
			map[string]any{"status": "pending"},
			map[string]any{"status": "pending"},
		},
	}

	idx, item, ok := ls.Advance()
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "pending", item.(map[string]any)["status"])
}

func TestLoopStateAdvanceExhausted(t *testing.T) {
	ls := &LoopState{
		CurrentIndex: 0,
		Items: []any{
			map[string]any{"status": "completed"},
			map[string]any{"status": "completed"},
		},
	}

	_, _, ok := ls.Advance()
	assert.False(t, ok)
}

func TestLoopStateAdvanceStartsFromCurrentIndex(t *testing.T) {
	ls := &LoopState{
		CurrentIndex: 2,
		Items: []any{
			map[string]any{"status": "pending"},
			map[string]any{"status": "pending"},
			map[string]any{"status": "pending"},
		},
	}

	idx, _, ok := ls.Advance()
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestFirstOr(t *testing.T) {
	assert.Equal(t, "done", firstOr([]string{"done"}, "fallback"))
	assert.Equal(t, "fallback", firstOr(nil, "fallback"))
}
