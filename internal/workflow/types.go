// Package workflow implements the persistent, retrying DAG execution engine
// that drives every analysis run.
package workflow

import (
	"context"
	"time"

	"github.com/attackguard/attackctl/internal/platform/errs"
)

// Status is a WorkflowContext's place in its state machine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// TaskError records why a task ultimately failed, after retries were
// exhausted (or were not applicable).
type TaskError struct {
	Kind      errs.Kind `json:"kind"`
	Message   string    `json:"message"`
	Retriable bool      `json:"retriable"`
}

// WorkflowContext is the durable, crash-safe record of one workflow run. It
// is persisted on every observable state change.
type WorkflowContext struct {
	ID           string               `json:"id"`
	WorkflowType string               `json:"workflowType"`
	Status       Status               `json:"status"`
	StartTime    time.Time            `json:"startTime"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	CurrentTask  string               `json:"currentTask,omitempty"`
	Results      map[string]any       `json:"results"`
	Errors       map[string]TaskError `json:"errors"`
	Metadata     map[string]any       `json:"metadata"`

	// CompletedTaskCount and TotalTasks back the status endpoint's progress
	// computation; they are not part of the spec's data model proper but are
	// cheap to keep alongside it rather than recomputed from Results at query
	// time.
	CompletedTaskCount int `json:"completedTaskCount"`
	TotalTasks         int `json:"totalTasks"`
}

// Handler is a task's function of context + derived input, run under the
// engine's timeout and retry policy. It must observe ctx cancellation on any
// blocking operation (network or disk I/O) it performs.
type Handler func(ctx context.Context, ec *ExecContext, input any) (any, error)

// ExecContext is the read side of the WorkflowContext a task handler sees.
type ExecContext struct {
	WorkflowID   string
	WorkflowType string
	Results      map[string]any
	Metadata     map[string]any
}

// TaskDefinition describes one node of a WorkflowDefinition.
type TaskDefinition struct {
	Name         string
	Handler      Handler
	InputSchema  *CompiledSchema
	OutputSchema *CompiledSchema
	Timeout      time.Duration
	Retries      int
	RetryDelay   time.Duration
}

// Definition is a named, frozen workflow shape: tasks keyed by name plus
// their prerequisite adjacency.
type Definition struct {
	Type      string
	Tasks     map[string]TaskDefinition
	DependsOn map[string][]string
}
