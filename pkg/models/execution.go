package models

import "time"

// ExecutionStatus is the lifecycle state of a whole execution or, for node
// statuses, an individual segment's source node (spec.md §3).
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusSkipped   ExecutionStatus = "skipped" // node-status only
)

// IsTerminal reports whether the status is a final whole-execution state.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Pseudo node ids used for whole-workflow / compiler-stage status frames
// (spec.md §4.5 "Publishers").
const (
	PseudoNodeCompiler = "__compiler__"
	PseudoNodeWorkflow = "__workflow__"
)

// NodeStatus tracks one node's (or pseudo-node's) progress within an
// execution.
type NodeStatus struct {
	Status       ExecutionStatus `json:"status"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	RowsProcessed *int           `json:"rows_processed,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ExecutionRecord is persisted in the fast store keyed by
// "<ns>:<tenant_id>:execution:<id>" with a 1h TTL (spec.md §3, §6).
type ExecutionRecord struct {
	ID           string                 `json:"id"`
	WorkflowID   string                 `json:"workflow_id"`
	TenantID     string                 `json:"tenant_id"`
	Status       ExecutionStatus        `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	NodeStatuses map[string]NodeStatus  `json:"node_statuses"`
}
