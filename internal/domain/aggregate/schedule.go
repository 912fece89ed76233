package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// Schedule statuses. While pending, retry bookkeeping advances without
// leaving the pending state; executed, failed and cancelled are terminal.
const (
	SchedulePending   = "pending"
	ScheduleExecuted  = "executed"
	ScheduleFailed    = "failed"
	ScheduleCancelled = "cancelled"
)

// ScheduleState is the canonical serializable state of a scheduled command.
type ScheduleState struct {
	ID                  uuid.UUID      `json:"id"`
	TargetAggregateID   uuid.UUID      `json:"target_aggregate_id"`
	TargetAggregateType string         `json:"target_aggregate_type"`
	CommandType         string         `json:"command_type"`
	CommandData         map[string]any `json:"command_data,omitempty"`
	ScheduledFor        time.Time      `json:"scheduled_for"`
	Status              string         `json:"status"`
	RetryCount          int            `json:"retry_count"`
	NextRetryAt         *time.Time     `json:"next_retry_at,omitempty"`
	CreatedBy           string         `json:"created_by"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Schedule is a time-triggered command against another aggregate. The
// scheduler polls due schedules, runs the registered handler, and records
// the outcome through these transitions.
type Schedule struct {
	Base
	state ScheduleState
}

// ScheduleParams are the creation inputs for a schedule.
type ScheduleParams struct {
	ID                  uuid.UUID
	TargetAggregateID   uuid.UUID
	TargetAggregateType string
	CommandType         string
	CommandData         map[string]any
	ScheduledFor        time.Time
	CreatedBy           string
}

func NewSchedule(p ScheduleParams, correlationID, userID string) (*Schedule, error) {
	if p.TargetAggregateID == uuid.Nil {
		return nil, validationErr(CodeMissingField, "schedule target aggregate id is required")
	}
	if p.CommandType == "" {
		return nil, validationErr(CodeMissingField, "schedule command type is required")
	}
	if p.ScheduledFor.IsZero() {
		return nil, validationErr(CodeMissingField, "schedule time is required")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	s := &Schedule{
		Base: newBase(p.ID, TypeSchedule, correlationID, userID),
		state: ScheduleState{
			ID:                  p.ID,
			TargetAggregateID:   p.TargetAggregateID,
			TargetAggregateType: p.TargetAggregateType,
			CommandType:         p.CommandType,
			CommandData:         p.CommandData,
			ScheduledFor:        p.ScheduledFor.UTC(),
			Status:              SchedulePending,
			CreatedBy:           p.CreatedBy,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
	}
	if err := s.emitCreated(event.TypeScheduleCreated, s.state); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSchedule rebuilds a schedule from its snapshot.
func LoadSchedule(snap Snapshot, correlationID, userID string) (*Schedule, error) {
	var state ScheduleState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	return &Schedule{
		Base:  loadBase(snap, correlationID, userID),
		state: state,
	}, nil
}

func (s *Schedule) State() ScheduleState { return s.state }

func (s *Schedule) Snapshot() (Snapshot, error) {
	return s.snapshot(s.state)
}

func (s *Schedule) MarkExecuted() error {
	if s.state.Status != SchedulePending {
		return validationErr(CodeInvalidStatus, "cannot execute schedule in status %q", s.state.Status)
	}
	next := s.state
	next.Status = ScheduleExecuted
	next.NextRetryAt = nil
	next.ErrorMessage = ""
	return s.apply(event.TypeScheduleExecuted, next)
}

// RecordFailure registers one failed execution attempt. Below maxRetries
// the schedule stays pending with exponential backoff (base 2, minutes,
// anchored at ScheduledFor); at or beyond it the schedule fails
// terminally.
func (s *Schedule) RecordFailure(errMsg string, maxRetries int) error {
	if s.state.Status != SchedulePending {
		return validationErr(CodeInvalidStatus, "cannot record failure for schedule in status %q", s.state.Status)
	}
	next := s.state
	next.RetryCount++
	next.ErrorMessage = errMsg
	if next.RetryCount < maxRetries {
		retryAt := next.ScheduledFor.Add(backoffDelay(next.RetryCount))
		next.NextRetryAt = &retryAt
		return s.apply(event.TypeScheduleRetried, next)
	}
	next.Status = ScheduleFailed
	next.NextRetryAt = nil
	return s.apply(event.TypeScheduleFailed, next)
}

func (s *Schedule) Cancel() error {
	if s.state.Status != SchedulePending {
		return validationErr(CodeInvalidStatus, "cannot cancel schedule in status %q", s.state.Status)
	}
	next := s.state
	next.Status = ScheduleCancelled
	next.NextRetryAt = nil
	return s.apply(event.TypeScheduleCancelled, next)
}

func (s *Schedule) apply(name event.Type, next ScheduleState) error {
	next.UpdatedAt = time.Now().UTC()
	if err := s.emit(name, s.state, next); err != nil {
		return err
	}
	s.state = next
	return nil
}

// backoffDelay is 2^retryCount minutes.
func backoffDelay(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Minute
}
