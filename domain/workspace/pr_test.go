package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveCIStatus_NoChecks(t *testing.T) {
	assert.Equal(t, CIStatusNone, deriveCIStatus(nil))
}

func TestDeriveCIStatus_Pending(t *testing.T) {
	checks := []CheckSummary{
		{Name: "build", Status: "completed", Conclusion: "success"},
		{Name: "test", Status: "in_progress"},
	}
	assert.Equal(t, CIStatusPending, deriveCIStatus(checks))
}

func TestDeriveCIStatus_Passing(t *testing.T) {
	checks := []CheckSummary{
		{Name: "build", Status: "completed", Conclusion: "success"},
		{Name: "test", Status: "completed", Conclusion: "success"},
	}
	assert.Equal(t, CIStatusPassing, deriveCIStatus(checks))
}

func TestDeriveCIStatus_Failing(t *testing.T) {
	checks := []CheckSummary{
		{Name: "build", Status: "completed", Conclusion: "success"},
		{Name: "test", Status: "completed", Conclusion: "failure"},
	}
	assert.Equal(t, CIStatusFailing, deriveCIStatus(checks))
}

func TestIsReadyToMerge_True(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "APPROVED"}}
	ready := isReadyToMerge("open", false, true, CIStatusPassing, reviews)
	assert.True(t, ready)
}

func TestIsReadyToMerge_FalseWhenDraft(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "APPROVED"}}
	ready := isReadyToMerge("open", true, true, CIStatusPassing, reviews)
	assert.False(t, ready)
}

func TestIsReadyToMerge_FalseWhenNotApproved(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "CHANGES_REQUESTED"}}
	ready := isReadyToMerge("open", false, true, CIStatusPassing, reviews)
	assert.False(t, ready)
}

func TestIsReadyToMerge_FalseWhenNotMergeable(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "APPROVED"}}
	ready := isReadyToMerge("open", false, false, CIStatusPassing, reviews)
	assert.False(t, ready)
}

func TestIsReadyToMerge_FalseWhenCIFailing(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "APPROVED"}}
	ready := isReadyToMerge("open", false, true, CIStatusFailing, reviews)
	assert.False(t, ready)
}

func TestIsReadyToMerge_FalseWhenClosed(t *testing.T) {
	reviews := []ReviewSummary{{User: "alice", State: "APPROVED"}}
	ready := isReadyToMerge("closed", false, true, CIStatusPassing, reviews)
	assert.False(t, ready)
}
