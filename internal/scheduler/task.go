package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task is one due command, whichever read model it was fetched from.
// Both the schedules read model and the pending-schedules projection
// for embedded sale/drop windows feed the same poller through this
// shape.
type Task struct {
	// ID is the schedule aggregate id for standalone schedules, or the
	// embedded entry id for sale/drop windows.
	ID            uuid.UUID
	GroupID       uuid.UUID
	CommandType   string
	CommandData   map[string]any
	TargetID      uuid.UUID
	TargetType    string
	DueAt         time.Time
	RetryCount    int
	CorrelationID string
	// Version is the optimistic token captured at fetch time. Sources
	// that have no version leave it zero and re-check by row state.
	Version int64
}

// Handler executes one due command against its target aggregate.
type Handler interface {
	Execute(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Execute(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// TaskSource is one backing read model for due tasks. The poller fetches
// due tasks, verifies each is still current, runs the handler, and
// records the outcome through the same source.
type TaskSource interface {
	Name() string

	// Due returns tasks whose time has come, earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]Task, error)

	// Verify reports whether the task is still current. A false return
	// means another writer changed it since Due fetched it; the poller
	// skips the task and lets the next poll see the new state.
	Verify(ctx context.Context, task Task) (bool, error)

	// Complete records a successful execution.
	Complete(ctx context.Context, task Task) error

	// Fail records a transient failure: the task stays pending with its
	// retry bookkeeping advanced.
	Fail(ctx context.Context, task Task, cause error) error

	// FailTerminal records an unrecoverable failure. The task never
	// retries.
	FailTerminal(ctx context.Context, task Task, cause error) error
}
