package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
)

// writeSet is the pending-write list one command accumulates. Nothing in
// it touches storage until the batcher flushes; a crash before the flush
// loses nothing because nothing was written.
type writeSet struct {
	events         []entity.EventRecord
	snapshots      []entity.SnapshotRecord
	outbox         []entity.OutboxEvent
	schedules      []entity.ScheduleRecord
	pending        []entity.PendingScheduleRecord
	pendingDeletes []uuid.UUID
	idemKeys       []entity.IdempotencyKey
	onCommit       []func()
}

func (s *writeSet) empty() bool {
	return s.size() == 0
}

func (s *writeSet) size() int {
	return len(s.events) + len(s.snapshots) + len(s.outbox) +
		len(s.schedules) + len(s.pending) + len(s.pendingDeletes) + len(s.idemKeys)
}

// apply writes the whole set inside tx. Order matters: event rows first,
// so the (aggregate_id, version) primary key rejects conflicting writers
// before any snapshot is touched.
func (s *writeSet) apply(tx *gorm.DB) error {
	for i := range s.events {
		if err := tx.Create(&s.events[i]).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return repository.ErrDuplicateEvent
			}
			return err
		}
	}
	for i := range s.snapshots {
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "aggregate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"aggregate_type", "correlation_id", "version", "payload", "updated_at",
			}),
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Lt{Column: clause.Column{Table: "snapshots", Name: "version"}, Value: s.snapshots[i].Version},
			}},
		}).Create(&s.snapshots[i])
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrVersionConflict
		}
	}
	for i := range s.outbox {
		if err := tx.Create(&s.outbox[i]).Error; err != nil {
			return err
		}
	}
	for i := range s.schedules {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "aggregate_id"}},
			UpdateAll: true,
		}).Create(&s.schedules[i]).Error; err != nil {
			return err
		}
	}
	for i := range s.pending {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&s.pending[i]).Error; err != nil {
			return err
		}
	}
	if len(s.pendingDeletes) > 0 {
		if err := tx.Where("schedule_group_id IN ?", s.pendingDeletes).
			Delete(&entity.PendingScheduleRecord{}).Error; err != nil {
			return err
		}
	}
	for i := range s.idemKeys {
		if err := tx.Create(&s.idemKeys[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

type commitRequest struct {
	set  *writeSet
	done chan error
}

// BatcherConfig tunes the transaction batcher.
type BatcherConfig struct {
	FlushInterval time.Duration
	SizeThreshold int
	MaxQueueDepth int
}

func (c BatcherConfig) withDefaults() BatcherConfig {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Millisecond
	}
	if c.SizeThreshold <= 0 {
		c.SizeThreshold = 64
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = 1024
	}
	return c
}

// Batcher coalesces the write sets of concurrently-submitted commands
// and commits them in one physical transaction per flush, trading a few
// milliseconds of latency for fewer commits under load. It is an owned
// background task: callers start it, stop it, and may run several
// independent instances side by side.
type Batcher struct {
	db  *DB
	log *logrus.Logger
	cfg BatcherConfig

	submitCh chan *commitRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewBatcher(db *DB, log *logrus.Logger, cfg BatcherConfig) *Batcher {
	cfg = cfg.withDefaults()
	return &Batcher{
		db:       db,
		log:      log,
		cfg:      cfg,
		submitCh: make(chan *commitRequest, cfg.MaxQueueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (b *Batcher) Start() {
	go b.run()
}

// Stop flushes whatever is queued and shuts the loop down. An in-flight
// flush finishes first.
func (b *Batcher) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// submit enqueues a write set and blocks until its flush commits or
// fails. A full queue fails fast with ErrQueueFull: backpressure, not
// unbounded growth.
func (b *Batcher) submit(ctx context.Context, set *writeSet) error {
	req := &commitRequest{set: set, done: make(chan error, 1)}
	select {
	case b.submitCh <- req:
	default:
		return repository.ErrQueueFull
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		// The write set stays queued; its commit outcome is simply no
		// longer observed by this caller.
		return ctx.Err()
	}
}

func (b *Batcher) run() {
	defer close(b.doneCh)
	timer := time.NewTimer(b.cfg.FlushInterval)
	defer timer.Stop()

	var batch []*commitRequest
	writes := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		b.flush(batch)
		batch = nil
		writes = 0
	}

	for {
		select {
		case req := <-b.submitCh:
			batch = append(batch, req)
			writes += req.set.size()
			if writes >= b.cfg.SizeThreshold {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(b.cfg.FlushInterval)
		case <-b.stopCh:
			// Drain anything already queued before exiting.
			for {
				select {
				case req := <-b.submitCh:
					batch = append(batch, req)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush commits every set in one transaction. The batch either fully
// commits or fully rolls back; partial application is a correctness bug,
// not an accepted outcome.
func (b *Batcher) flush(batch []*commitRequest) {
	err := b.db.WithTx(context.Background(), func(txCtx context.Context) error {
		tx := b.db.Write(txCtx)
		for _, req := range batch {
			if err := req.set.apply(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.log.WithError(err).WithField("batch_size", len(batch)).Warn("batch commit failed")
	} else {
		for _, req := range batch {
			for _, fn := range req.set.onCommit {
				fn()
			}
		}
	}
	for _, req := range batch {
		req.done <- err
	}
}

// UnitOfWork hands command code a set of registration-only stores backed
// by one shared pending-write list and commits the list atomically
// through the batcher.
type UnitOfWork struct {
	db      *DB
	batcher *Batcher
}

func NewUnitOfWork(db *DB, batcher *Batcher) *UnitOfWork {
	return &UnitOfWork{db: db, batcher: batcher}
}

// Stores is the repository set handed to one transaction's function. All
// writes land on the shared pending list; reads see committed data only.
type Stores struct {
	Events           *EventStore
	Snapshots        *SnapshotStore
	Outbox           *OutboxStore
	Schedules        *ScheduleStore
	PendingSchedules *PendingScheduleStore
	Idempotency      *IdempotencyStore

	set *writeSet
}

// OnCommit registers fn to run after the write set durably commits.
// The persistence layer uses this to clear aggregates' uncommitted
// events.
func (s *Stores) OnCommit(fn func()) {
	s.set.onCommit = append(s.set.onCommit, fn)
}

// Persist registers an aggregate's uncommitted events, their outbox
// entries and the fresh snapshot, and clears the uncommitted list once
// the batch durably commits.
func (s *Stores) Persist(root aggregate.Root) error {
	for _, ev := range root.Uncommitted() {
		if err := s.Events.Add(ev); err != nil {
			return err
		}
		if err := s.Outbox.Add(ev, AddOptions{}); err != nil {
			return err
		}
	}
	snap, err := root.Snapshot()
	if err != nil {
		return err
	}
	s.Snapshots.Save(snap)
	s.OnCommit(root.MarkCommitted)
	return nil
}

// WithTransaction runs fn with a fresh store set. When fn returns nil
// every registered write commits atomically (blocking until the batch
// flush); when fn returns an error nothing is submitted.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(ctx context.Context, s *Stores) error) error {
	set := &writeSet{}
	stores := &Stores{
		Events:           &EventStore{db: u.db, set: set},
		Snapshots:        &SnapshotStore{db: u.db, set: set},
		Outbox:           &OutboxStore{db: u.db, set: set},
		Schedules:        &ScheduleStore{db: u.db, set: set},
		PendingSchedules: &PendingScheduleStore{db: u.db, set: set},
		Idempotency:      &IdempotencyStore{db: u.db, set: set},
		set:              set,
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}
	if set.empty() {
		return nil
	}
	return u.batcher.submit(ctx, set)
}
