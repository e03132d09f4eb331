package eventbus

import (
	"errors"
	"testing"
)

func TestStreamForRun(t *testing.T) {
	got := StreamForRun("run-123")
	want := "events:run:run-123"
	if got != want {
		t.Errorf("StreamForRun() = %q, want %q", got, want)
	}
}

func TestIsBusyGroupErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"busygroup", errors.New("BUSYGROUP Consumer Group name already exists"), true},
		{"other redis error", errors.New("ERR wrong number of arguments"), false},
		{"nil", nil, false},
		{"short error", errors.New("no"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isBusyGroupErr(tt.err); got != tt.want {
				t.Errorf("isBusyGroupErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
