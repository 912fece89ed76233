package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
)

// IdempotencyStore lets the command dispatcher replay-detect retried
// requests. Record registers the key row with the active unit of work,
// so the key commits atomically with the command's own writes.
type IdempotencyStore struct {
	db  *DB
	set *writeSet
}

// NewIdempotencyReader returns a read-only view for callers outside any
// unit of work.
func NewIdempotencyReader(db *DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// Get returns the stored key row, or repository.ErrSnapshotNotFound.
func (s *IdempotencyStore) Get(ctx context.Context, key string) (entity.IdempotencyKey, error) {
	var row entity.IdempotencyKey
	if err := s.db.Read(ctx).First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.IdempotencyKey{}, repository.ErrSnapshotNotFound
		}
		return entity.IdempotencyKey{}, err
	}
	return row, nil
}

func (s *IdempotencyStore) Record(row entity.IdempotencyKey) {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.set.idemKeys = append(s.set.idemKeys, row)
}
