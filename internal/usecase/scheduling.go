package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/scheduler"
)

type createScheduleCmd struct {
	ID           string         `json:"id"`
	TargetID     string         `json:"targetId"`
	TargetType   string         `json:"targetType"`
	CommandType  string         `json:"commandType"`
	CommandData  map[string]any `json:"commandData"`
	ScheduledFor time.Time      `json:"scheduledFor"`
}

// CreateSchedule records a command to run at a future time. The
// schedule aggregate and its read model row commit together; the poller
// picks the row up once ScheduledFor passes.
func (s *Service) CreateSchedule(ctx context.Context, cmd Command) (any, error) {
	var in createScheduleCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	id, err := parseOptionalID(in.ID)
	if err != nil {
		return nil, err
	}
	targetID, err := parseID(in.TargetID)
	if err != nil {
		return nil, err
	}
	if in.ScheduledFor.IsZero() {
		return nil, fmt.Errorf("%w: scheduledFor is required", ErrBadPayload)
	}
	var state aggregate.ScheduleState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		sched, err := aggregate.NewSchedule(aggregate.ScheduleParams{
			ID:                  id,
			TargetAggregateID:   targetID,
			TargetAggregateType: in.TargetType,
			CommandType:         in.CommandType,
			CommandData:         in.CommandData,
			ScheduledFor:        in.ScheduledFor,
			CreatedBy:           cmd.UserID,
		}, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := st.Persist(sched); err != nil {
			return err
		}
		if err := st.Schedules.Save(sched.State(), sched.CorrelationID(), sched.Version()); err != nil {
			return err
		}
		state = sched.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// CancelSchedule withdraws a pending schedule. Executed, failed or
// cancelled schedules reject the command.
func (s *Service) CancelSchedule(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	id, err := parseID(in.ID)
	if err != nil {
		return nil, err
	}
	var state aggregate.ScheduleState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := verifyVersion(snap, in.ExpectedVersion); err != nil {
			return err
		}
		sched, err := aggregate.LoadSchedule(snap, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := sched.Cancel(); err != nil {
			return err
		}
		if err := st.Persist(sched); err != nil {
			return err
		}
		if err := st.Schedules.Save(sched.State(), sched.CorrelationID(), sched.Version()); err != nil {
			return err
		}
		state = sched.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ScheduledTaskHandler adapts the dispatcher to the poller's handler
// contract. The task's target id is merged under "id" with the stored
// command data; scheduled executions run as the system user with a
// fresh correlation id.
func ScheduledTaskHandler(d *Dispatcher) scheduler.HandlerFunc {
	return func(ctx context.Context, task scheduler.Task) error {
		payload := map[string]any{"id": task.TargetID.String()}
		for k, v := range task.CommandData {
			payload[k] = v
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		_, err = d.Dispatch(ctx, Command{
			Type:          task.CommandType,
			Payload:       raw,
			UserID:        "system",
			CorrelationID: uuid.NewString(),
		})
		return err
	}
}

// BindScheduler registers every dispatcher command type on the poller
// through the bridge handler. Anything dispatchable is schedulable.
func BindScheduler(p *scheduler.Poller, d *Dispatcher) {
	bridge := ScheduledTaskHandler(d)
	for _, ct := range d.CommandTypes() {
		p.Register(ct, bridge)
	}
}
