package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

// schedulerActor is the user id stamped on events the poller emits.
const schedulerActor = "scheduler"

// ScheduleSource feeds the poller from the schedules read model. Every
// outcome is recorded through the schedule aggregate itself, so the
// event log, snapshot, outbox entry and read model row move together in
// one unit of work.
type ScheduleSource struct {
	uow        *persistence.UnitOfWork
	log        *logrus.Logger
	maxRetries int
}

func NewScheduleSource(uow *persistence.UnitOfWork, log *logrus.Logger, maxRetries int) *ScheduleSource {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &ScheduleSource{uow: uow, log: log, maxRetries: maxRetries}
}

func (s *ScheduleSource) Name() string { return "schedules" }

func (s *ScheduleSource) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var tasks []Task
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		rows, err := st.Schedules.Due(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			var data map[string]any
			if len(row.CommandData) > 0 {
				if err := json.Unmarshal(row.CommandData, &data); err != nil {
					return err
				}
			}
			tasks = append(tasks, Task{
				ID:            row.AggregateID,
				CommandType:   row.CommandType,
				CommandData:   data,
				TargetID:      row.TargetAggregateID,
				TargetType:    row.TargetAggregateType,
				DueAt:         row.ScheduledFor,
				RetryCount:    row.RetryCount,
				CorrelationID: row.CorrelationID,
				Version:       row.Version,
			})
		}
		return nil
	})
	return tasks, err
}

// Verify re-reads the schedule's snapshot and compares the version
// against the fetch-time token. A mismatch means another writer touched
// the schedule after Due fetched it; the task is skipped and the next
// poll sees whatever state that writer left.
func (s *ScheduleSource) Verify(ctx context.Context, task Task) (bool, error) {
	current := false
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, task.ID)
		if err != nil {
			return err
		}
		if snap.Version != task.Version {
			return nil
		}
		sched, err := aggregate.LoadSchedule(snap, task.CorrelationID, schedulerActor)
		if err != nil {
			return err
		}
		current = sched.State().Status == aggregate.SchedulePending
		return nil
	})
	return current, err
}

func (s *ScheduleSource) Complete(ctx context.Context, task Task) error {
	return s.record(ctx, task, func(sched *aggregate.Schedule) error {
		return sched.MarkExecuted()
	})
}

func (s *ScheduleSource) Fail(ctx context.Context, task Task, cause error) error {
	return s.record(ctx, task, func(sched *aggregate.Schedule) error {
		return sched.RecordFailure(cause.Error(), s.maxRetries)
	})
}

// FailTerminal records an unrecoverable outcome: one counted attempt,
// no retry window.
func (s *ScheduleSource) FailTerminal(ctx context.Context, task Task, cause error) error {
	return s.record(ctx, task, func(sched *aggregate.Schedule) error {
		return sched.RecordFailure(cause.Error(), 1)
	})
}

// record loads the schedule aggregate, applies mutate, and persists
// events, snapshot, outbox entry and read model row atomically. The
// version is re-checked inside the unit of work; on mismatch the
// outcome is dropped and the schedule is left for the next poll.
func (s *ScheduleSource) record(ctx context.Context, task Task, mutate func(*aggregate.Schedule) error) error {
	return s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, task.ID)
		if err != nil {
			return err
		}
		if snap.Version != task.Version {
			s.log.WithFields(logrus.Fields{
				"schedule_id":      task.ID,
				"fetched_version":  task.Version,
				"snapshot_version": snap.Version,
			}).Info("schedule changed since fetch, dropping outcome")
			return nil
		}
		sched, err := aggregate.LoadSchedule(snap, task.CorrelationID, schedulerActor)
		if err != nil {
			return err
		}
		if err := mutate(sched); err != nil {
			return err
		}
		if err := st.Persist(sched); err != nil {
			return err
		}
		return st.Schedules.Save(sched.State(), sched.CorrelationID(), sched.Version())
	})
}

// PendingScheduleSource feeds the poller from the pending-schedules
// projection of embedded sale and drop windows. The variant mutation
// itself happens in the registered handler; this source only maintains
// the projection rows.
type PendingScheduleSource struct {
	uow        *persistence.UnitOfWork
	log        *logrus.Logger
	maxRetries int
}

func NewPendingScheduleSource(uow *persistence.UnitOfWork, log *logrus.Logger, maxRetries int) *PendingScheduleSource {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &PendingScheduleSource{uow: uow, log: log, maxRetries: maxRetries}
}

func (s *PendingScheduleSource) Name() string { return "pending_schedules" }

func (s *PendingScheduleSource) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	var tasks []Task
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		rows, err := st.PendingSchedules.Due(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			var data map[string]any
			if len(row.CommandData) > 0 {
				if err := json.Unmarshal(row.CommandData, &data); err != nil {
					return err
				}
			}
			tasks = append(tasks, Task{
				ID:            row.ID,
				GroupID:       row.ScheduleGroupID,
				CommandType:   row.CommandType,
				CommandData:   data,
				TargetID:      row.TargetAggregateID,
				TargetType:    row.TargetAggregateType,
				DueAt:         row.DueAt,
				RetryCount:    row.RetryCount,
				CorrelationID: row.CorrelationID,
			})
		}
		return nil
	})
	return tasks, err
}

// Verify reports whether the projection row still exists and is still
// pending. Cancelling a sale or drop deletes its group's rows, so a
// missing row means the window was withdrawn between fetch and run.
func (s *PendingScheduleSource) Verify(ctx context.Context, task Task) (bool, error) {
	current := false
	err := s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		row, err := st.PendingSchedules.Get(ctx, task.ID)
		if err != nil {
			if errors.Is(err, repository.ErrSnapshotNotFound) {
				return nil
			}
			return err
		}
		current = row.Status == aggregate.SchedulePending
		return nil
	})
	return current, err
}

func (s *PendingScheduleSource) Complete(ctx context.Context, task Task) error {
	return s.update(ctx, task, func(row *entity.PendingScheduleRecord) {
		row.Status = aggregate.ScheduleExecuted
		row.NextRetryAt = nil
		row.ErrorMessage = ""
	})
}

func (s *PendingScheduleSource) Fail(ctx context.Context, task Task, cause error) error {
	return s.update(ctx, task, func(row *entity.PendingScheduleRecord) {
		row.RetryCount++
		row.ErrorMessage = cause.Error()
		if row.RetryCount < s.maxRetries {
			retryAt := row.DueAt.Add(time.Duration(1<<uint(row.RetryCount)) * time.Minute)
			row.NextRetryAt = &retryAt
			return
		}
		row.Status = aggregate.ScheduleFailed
		row.NextRetryAt = nil
	})
}

func (s *PendingScheduleSource) FailTerminal(ctx context.Context, task Task, cause error) error {
	return s.update(ctx, task, func(row *entity.PendingScheduleRecord) {
		if row.RetryCount == 0 {
			row.RetryCount = 1
		}
		row.Status = aggregate.ScheduleFailed
		row.NextRetryAt = nil
		row.ErrorMessage = cause.Error()
	})
}

func (s *PendingScheduleSource) update(ctx context.Context, task Task, mutate func(*entity.PendingScheduleRecord)) error {
	return s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		row, err := st.PendingSchedules.Get(ctx, task.ID)
		if err != nil {
			if errors.Is(err, repository.ErrSnapshotNotFound) {
				s.log.WithField("entry_id", task.ID).Info("pending schedule row gone, dropping outcome")
				return nil
			}
			return err
		}
		if row.Status != aggregate.SchedulePending {
			return nil
		}
		mutate(&row)
		st.PendingSchedules.Save(row)
		return nil
	})
}
