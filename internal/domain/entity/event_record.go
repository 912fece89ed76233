package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventRecord is one row of the append-only event log. The composite
// primary key (aggregate_id, version) makes duplicate or out-of-order
// version writes fail fast; a duplicate here is a corruption signal, not
// a retry path.
type EventRecord struct {
	AggregateID   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Version       int64          `gorm:"primaryKey;autoIncrement:false"`
	AggregateType string         `gorm:"not null;index"`
	EventType     string         `gorm:"not null;index"`
	CorrelationID string         `gorm:"not null"`
	UserID        string         `gorm:"not null"`
	OccurredAt    time.Time      `gorm:"not null"`
	Payload       datatypes.JSON `gorm:"not null"`
}

func (EventRecord) TableName() string {
	return "events"
}
