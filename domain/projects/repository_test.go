package projects

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{
			name: "error contains code directly",
			err:  errors.New("ERROR: duplicate key value violates unique constraint (23505)"),
			want: true,
		},
		{
			name: "error contains SQLSTATE prefix",
			err:  errors.New("ERROR: SQLSTATE 23505 duplicate key value"),
			want: true,
		},
		{"error does not contain code", errors.New("some other error"), false},
		{"empty error message", errors.New(""), false},
		{"foreign key violation is a different code", errors.New("SQLSTATE 23503"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestValidateSemantics(t *testing.T) {
	t.Run("complete semantics has no missing roles", func(t *testing.T) {
		p := &Project{StatusSemantics: DefaultStatusSemantics()}
		assert.Empty(t, p.ValidateSemantics())
	})

	t.Run("missing roles are reported", func(t *testing.T) {
		p := &Project{StatusSemantics: StatusSemantics{
			SemanticInitial: {"backlog"},
		}}
		missing := p.ValidateSemantics()
		assert.ElementsMatch(t, []string{
			SemanticClaimable, SemanticTerminalDone, SemanticTerminalFail, SemanticBlocked,
		}, missing)
	})

	t.Run("nil semantics reports all roles missing", func(t *testing.T) {
		p := &Project{}
		assert.Len(t, p.ValidateSemantics(), 5)
	})
}

func TestStatusSemanticsHasRole(t *testing.T) {
	s := DefaultStatusSemantics()
	assert.True(t, s.HasRole(SemanticClaimable, "ready"))
	assert.False(t, s.HasRole(SemanticClaimable, "done"))
	assert.False(t, s.HasRole("unknown-role", "ready"))
}
