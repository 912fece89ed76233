package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// OutboxStore writes relay entries in the same transaction as their
// source events (via the unit of work) and gives the relay worker its
// claim/ack surface (direct DB access, outside any unit of work).
type OutboxStore struct {
	db  *DB
	set *writeSet
}

// AddOptions tunes one outbox entry.
type AddOptions struct {
	// IdempotencyKey overrides the default aggregateID:version key.
	IdempotencyKey string
}

// Add registers an outbox entry for ev with the active unit of work.
func (s *OutboxStore) Add(ev event.Event, opts AddOptions) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	key := opts.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("%s:%d", ev.AggregateID, ev.Version)
	}
	s.set.outbox = append(s.set.outbox, entity.OutboxEvent{
		ID:             uuid.New(),
		AggregateID:    ev.AggregateID,
		AggregateType:  ev.AggregateType,
		EventType:      string(ev.Name),
		Payload:        datatypes.JSON(payload),
		Status:         entity.OutboxPending,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

// NewOutboxRelay returns the store surface the relay worker uses. It is
// not bound to a unit of work: claims and acks are their own small
// transactions.
func NewOutboxRelay(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Claim locks up to limit due pending entries for this worker. Entries
// locked longer than lockTimeout are considered abandoned and
// reclaimable; entries at or beyond maxAttempts are left for MoveToDead.
func (s *OutboxStore) Claim(ctx context.Context, limit int, lockTimeout time.Duration, maxAttempts int) ([]entity.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if lockTimeout <= 0 {
		lockTimeout = time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	lockSeconds := int(lockTimeout.Seconds())

	query := `
WITH cte AS (
    SELECT id
    FROM outbox_events
    WHERE status = 'pending'
      AND retry_count < ?
      AND (next_retry_at IS NULL OR next_retry_at <= NOW())
      AND (locked_at IS NULL OR locked_at < NOW() - (? * INTERVAL '1 second'))
    ORDER BY created_at
    LIMIT ?
    FOR UPDATE SKIP LOCKED
)
UPDATE outbox_events
SET locked_at = NOW(), retry_count = retry_count + 1, last_attempt_at = NOW()
WHERE id IN (SELECT id FROM cte)
RETURNING id, aggregate_id, aggregate_type, event_type, payload, status, retry_count, last_attempt_at, next_retry_at, locked_at, last_error, idempotency_key, created_at;
`

	var events []entity.OutboxEvent
	if err := s.db.Write(ctx).Raw(query, maxAttempts, lockSeconds, limit).Scan(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return s.db.Write(ctx).
		Model(&entity.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    entity.OutboxProcessed,
			"locked_at": nil,
		}).Error
}

// MarkFailed releases the lock and schedules the next relay attempt
// with exponential backoff in the retry count.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, retryCount int, errMsg string) error {
	next := time.Now().UTC().Add(time.Duration(1<<uint(retryCount)) * time.Second)
	return s.db.Write(ctx).
		Model(&entity.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    errMsg,
			"locked_at":     nil,
			"next_retry_at": next,
		}).Error
}

// MoveToDead moves entries whose retries are exhausted to the
// dead-letter table in one transaction per entry.
func (s *OutboxStore) MoveToDead(ctx context.Context, ev entity.OutboxEvent, errMsg string) error {
	return s.db.WithTx(ctx, func(txCtx context.Context) error {
		dead := entity.OutboxDeadLetter{
			ID:             ev.ID,
			AggregateID:    ev.AggregateID,
			AggregateType:  ev.AggregateType,
			EventType:      ev.EventType,
			Payload:        ev.Payload,
			RetryCount:     ev.RetryCount,
			LastError:      errMsg,
			IdempotencyKey: ev.IdempotencyKey,
			FailedAt:       time.Now().UTC(),
		}
		if err := s.db.Write(txCtx).Create(&dead).Error; err != nil {
			return err
		}
		return s.db.Write(txCtx).
			Model(&entity.OutboxEvent{}).
			Where("id = ?", ev.ID).
			Updates(map[string]any{
				"status":     entity.OutboxDead,
				"locked_at":  nil,
				"last_error": errMsg,
			}).Error
	})
}

// PendingCount reports how many entries still await relay.
func (s *OutboxStore) PendingCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.Read(ctx).
		Model(&entity.OutboxEvent{}).
		Where("status = ?", entity.OutboxPending).
		Count(&n).Error
	return n, err
}
