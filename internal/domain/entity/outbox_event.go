package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Outbox entry statuses.
const (
	OutboxPending   = "pending"
	OutboxProcessed = "processed"
	OutboxDead      = "dead"
)

// OutboxEvent is a durable queue entry created in the same transaction as
// its source event row, so a relay can never lose an event relative to
// the state change.
type OutboxEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	AggregateID    uuid.UUID      `gorm:"type:uuid;not null;index"`
	AggregateType  string         `gorm:"not null"`
	EventType      string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	Status         string         `gorm:"not null;default:pending;index"`
	RetryCount     int            `gorm:"not null;default:0"`
	LastAttemptAt  *time.Time     `gorm:""`
	NextRetryAt    *time.Time     `gorm:""`
	LockedAt       *time.Time     `gorm:""`
	LastError      string         `gorm:""`
	IdempotencyKey string         `gorm:"not null;uniqueIndex"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// OutboxDeadLetter holds outbox entries whose relay retries were
// exhausted, preserved for inspection and manual replay.
type OutboxDeadLetter struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	AggregateID    uuid.UUID      `gorm:"type:uuid;not null"`
	AggregateType  string         `gorm:"not null"`
	EventType      string         `gorm:"not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	RetryCount     int            `gorm:"not null"`
	LastError      string         `gorm:""`
	IdempotencyKey string         `gorm:"not null"`
	FailedAt       time.Time      `gorm:"not null"`
}

func (OutboxDeadLetter) TableName() string {
	return "outbox_dead_letters"
}
