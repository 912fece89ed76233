package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SnapshotRecord is the latest materialized state of one aggregate, one
// row per aggregate id. Version is the optimistic concurrency token.
type SnapshotRecord struct {
	AggregateID   uuid.UUID      `gorm:"type:uuid;primaryKey"`
	AggregateType string         `gorm:"not null;index"`
	CorrelationID string         `gorm:"not null"`
	Version       int64          `gorm:"not null"`
	Payload       datatypes.JSON `gorm:"not null"`
	UpdatedAt     time.Time      `gorm:"not null"`
}

func (SnapshotRecord) TableName() string {
	return "snapshots"
}
