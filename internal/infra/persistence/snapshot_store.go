package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
)

// SnapshotStore is the hot load path: one materialized row per
// aggregate. Save registers an upsert with the active unit of work; the
// version guard inside the batch flush rejects stale writers.
type SnapshotStore struct {
	db  *DB
	set *writeSet
}

// Get returns the committed snapshot for one aggregate, or
// repository.ErrSnapshotNotFound.
func (s *SnapshotStore) Get(ctx context.Context, aggregateID uuid.UUID) (aggregate.Snapshot, error) {
	var row entity.SnapshotRecord
	if err := s.db.Read(ctx).First(&row, "aggregate_id = ?", aggregateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return aggregate.Snapshot{}, repository.ErrSnapshotNotFound
		}
		return aggregate.Snapshot{}, err
	}
	return aggregate.Snapshot{
		AggregateID:   row.AggregateID,
		AggregateType: row.AggregateType,
		CorrelationID: row.CorrelationID,
		Version:       row.Version,
		Payload:       []byte(row.Payload),
	}, nil
}

func (s *SnapshotStore) Save(snap aggregate.Snapshot) {
	s.set.snapshots = append(s.set.snapshots, entity.SnapshotRecord{
		AggregateID:   snap.AggregateID,
		AggregateType: snap.AggregateType,
		CorrelationID: snap.CorrelationID,
		Version:       snap.Version,
		Payload:       datatypes.JSON(snap.Payload),
		UpdatedAt:     time.Now().UTC(),
	})
}
