package entity

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKey records one accepted command so replays with the same
// key return the original result instead of re-executing.
type IdempotencyKey struct {
	Key         string    `gorm:"primaryKey"`
	RequestHash string    `gorm:"not null"`
	UserID      string    `gorm:"not null"`
	AggregateID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}
