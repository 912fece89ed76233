package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ScheduleRecord is the schedules read model the poller queries. It
// mirrors the Schedule aggregate's snapshot; Version is the optimistic
// token captured at fetch time and re-checked before recording outcomes.
type ScheduleRecord struct {
	AggregateID         uuid.UUID      `gorm:"type:uuid;primaryKey"`
	TargetAggregateID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	TargetAggregateType string         `gorm:"not null"`
	CommandType         string         `gorm:"not null"`
	CommandData         datatypes.JSON `gorm:""`
	ScheduledFor        time.Time      `gorm:"not null;index"`
	Status              string         `gorm:"not null;index"`
	RetryCount          int            `gorm:"not null;default:0"`
	NextRetryAt         *time.Time     `gorm:""`
	CreatedBy           string         `gorm:"not null"`
	ErrorMessage        string         `gorm:""`
	CorrelationID       string         `gorm:"not null"`
	Version             int64          `gorm:"not null"`
	UpdatedAt           time.Time      `gorm:"not null"`
}

func (ScheduleRecord) TableName() string {
	return "schedules_read_model"
}

// PendingScheduleRecord is the pending-schedules read model for embedded
// sale/drop schedules, keyed by the embedded entry id so the poller can
// find due activations without loading every variant. ScheduleGroupID
// links a sale's start+end pair (or a drop's single entry) for atomic
// cancellation by group.
type PendingScheduleRecord struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ScheduleGroupID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	TargetAggregateID   uuid.UUID      `gorm:"type:uuid;not null;index"`
	TargetAggregateType string         `gorm:"not null"`
	CommandType         string         `gorm:"not null"`
	CommandData         datatypes.JSON `gorm:""`
	DueAt               time.Time      `gorm:"not null;index"`
	Status              string         `gorm:"not null;index"`
	RetryCount          int            `gorm:"not null;default:0"`
	NextRetryAt         *time.Time     `gorm:""`
	ErrorMessage        string         `gorm:""`
	CorrelationID       string         `gorm:"not null"`
	CreatedAt           time.Time      `gorm:"not null"`
	UpdatedAt           time.Time      `gorm:"not null"`
}

func (PendingScheduleRecord) TableName() string {
	return "pending_schedules_read_model"
}
