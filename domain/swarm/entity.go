package swarm

import "github.com/djinnbot/core/domain/dependencies"

// Node is one task participating in a swarm's execution DAG.
type Node struct {
	TaskID   string `json:"task_id"`
	Priority string `json:"priority"`
}

// DAG is the execution graph handed to the external swarm-executor
// (spec §4.8 "execution DAG").
type DAG struct {
	Nodes []Node              `json:"nodes"`
	Edges []dependencies.Edge `json:"edges"`
}

// BoardSwarmRequest selects the tasks to board into one swarm.
type BoardSwarmRequest struct {
	TaskIDs []string `json:"task_ids" validate:"required,min=1"`
}

// BoardSwarmResult is the response of BoardSwarm: a swarm id for polling
// plus the DAG that was dispatched.
type BoardSwarmResult struct {
	SwarmID string `json:"swarm_id"`
	DAG     DAG    `json:"dag"`
}

// ExecuteRequest is the body agent-initiated swarms post to /swarm-execute
// (spec §4.8 "Agent-initiated swarms ... accept a pre-built DAG directly").
type ExecuteRequest struct {
	DAG DAG `json:"dag" validate:"required"`
}

// NotAllClaimableError reports that BoardSwarm was asked to board tasks that
// are not all currently claimable (spec §4.8 step 2).
type NotAllClaimableError struct {
	TaskIDs []string
}

func (e *NotAllClaimableError) Error() string {
	return "not all selected tasks are claimable"
}
