package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/pagination"
)

// ScheduleStore maintains the schedules read model the poller queries.
// Save registers the projection upsert with the active unit of work, so
// it commits atomically with the schedule aggregate's own events.
type ScheduleStore struct {
	db  *DB
	set *writeSet
}

// NewScheduleReader returns a read-only view over the schedules read
// model for callers outside any unit of work. Save panics on it.
func NewScheduleReader(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// Save projects a schedule aggregate's state into the read model.
func (s *ScheduleStore) Save(state aggregate.ScheduleState, correlationID string, version int64) error {
	data, err := json.Marshal(state.CommandData)
	if err != nil {
		return err
	}
	s.set.schedules = append(s.set.schedules, entity.ScheduleRecord{
		AggregateID:         state.ID,
		TargetAggregateID:   state.TargetAggregateID,
		TargetAggregateType: state.TargetAggregateType,
		CommandType:         state.CommandType,
		CommandData:         datatypes.JSON(data),
		ScheduledFor:        state.ScheduledFor,
		Status:              state.Status,
		RetryCount:          state.RetryCount,
		NextRetryAt:         state.NextRetryAt,
		CreatedBy:           state.CreatedBy,
		ErrorMessage:        state.ErrorMessage,
		CorrelationID:       correlationID,
		Version:             version,
		UpdatedAt:           time.Now().UTC(),
	})
	return nil
}

// Due returns pending schedules whose time has come, earliest first.
func (s *ScheduleStore) Due(ctx context.Context, now time.Time, limit int) ([]entity.ScheduleRecord, error) {
	var rows []entity.ScheduleRecord
	err := s.db.Read(ctx).
		Where("status = ?", aggregate.SchedulePending).
		Where("scheduled_for <= ?", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Get returns one schedule row; scheduled executions are invisible to
// synchronous callers, so this is how their outcome is observed.
func (s *ScheduleStore) Get(ctx context.Context, scheduleID uuid.UUID) (entity.ScheduleRecord, error) {
	var row entity.ScheduleRecord
	if err := s.db.Read(ctx).First(&row, "aggregate_id = ?", scheduleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.ScheduleRecord{}, repository.ErrSnapshotNotFound
		}
		return entity.ScheduleRecord{}, err
	}
	return row, nil
}

// ListCursor pages through the read model, newest first.
func (s *ScheduleStore) ListCursor(ctx context.Context, limit int, cursor string) ([]entity.ScheduleRecord, string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Read(ctx).
		Limit(limit).
		Order("updated_at DESC").
		Order("aggregate_id DESC")
	if cursor != "" {
		cursorTime, cursorID, err := pagination.Decode(cursor)
		if err != nil {
			return nil, "", repository.ErrInvalidCursor
		}
		query = query.Where("(updated_at < ?) OR (updated_at = ? AND aggregate_id < ?)", cursorTime, cursorTime, cursorID)
	}
	var rows []entity.ScheduleRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	next := ""
	if len(rows) == limit {
		last := rows[len(rows)-1]
		next = pagination.Encode(last.UpdatedAt, last.AggregateID)
	}
	return rows, next, nil
}

// PendingScheduleStore maintains the pending-schedules projection for
// embedded sale/drop schedules so the poller can find due activations
// without loading every variant.
type PendingScheduleStore struct {
	db  *DB
	set *writeSet
}

// Save registers a pending-schedule row upsert with the unit of work.
func (s *PendingScheduleStore) Save(row entity.PendingScheduleRecord) {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	row.UpdatedAt = time.Now().UTC()
	s.set.pending = append(s.set.pending, row)
}

// DeleteGroup registers the removal of every row in a schedule group
// (a sale's start+end pair, or a drop's single entry).
func (s *PendingScheduleStore) DeleteGroup(groupID uuid.UUID) {
	s.set.pendingDeletes = append(s.set.pendingDeletes, groupID)
}

// Due returns pending embedded-schedule rows whose time has come.
func (s *PendingScheduleStore) Due(ctx context.Context, now time.Time, limit int) ([]entity.PendingScheduleRecord, error) {
	var rows []entity.PendingScheduleRecord
	err := s.db.Read(ctx).
		Where("status = ?", aggregate.SchedulePending).
		Where("due_at <= ?", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("due_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Get returns one pending row by entry id.
func (s *PendingScheduleStore) Get(ctx context.Context, id uuid.UUID) (entity.PendingScheduleRecord, error) {
	var row entity.PendingScheduleRecord
	if err := s.db.Read(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.PendingScheduleRecord{}, repository.ErrSnapshotNotFound
		}
		return entity.PendingScheduleRecord{}, err
	}
	return row, nil
}
