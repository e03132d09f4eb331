package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskStore struct {
	tasks map[string]*TaskRef
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: map[string]*TaskRef{}}
}

func (f *fakeTaskStore) GetTask(ctx context.Context, taskID string) (*TaskRef, error) {
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, assert.AnError
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTaskStore) SaveTaskMetadata(ctx context.Context, taskID string, metadata map[string]any) error {
	t, ok := f.tasks[taskID]
	if !ok {
		return assert.AnError
	}
	t.Metadata = metadata
	return nil
}

func TestEnsureTaskBranch_PersistsOnce(t *testing.T) {
	store := newFakeTaskStore()
	store.tasks["t1"] = &TaskRef{ID: "t1", Title: "Add login page", Metadata: map[string]any{}}
	svc := &Service{tasks: store}

	branch, err := svc.EnsureTaskBranch(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "feat/t1-add-login-page", branch)
	assert.Equal(t, branch, store.tasks["t1"].Metadata[MetaGitBranch])

	// Second call must not recompute since it's already persisted.
	store.tasks["t1"].Title = "a totally different title"
	branch2, err := svc.EnsureTaskBranch(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, branch, branch2)
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{42, 42, true},
		{int64(7), 7, true},
		{float64(9), 9, true},
		{"nope", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := asInt(c.in)
		assert.Equal(t, c.ok, ok)
		if ok {
			assert.Equal(t, c.want, got)
		}
	}
}
