package aggregate

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// Aggregate type names as stored in snapshots and events.
const (
	TypeCollection       = "collection"
	TypeProduct          = "product"
	TypeVariant          = "variant"
	TypeSlugRegistry     = "slug_registry"
	TypeProductPositions = "product_positions"
	TypeSchedule         = "schedule"
)

// Root is the capability every aggregate exposes to the persistence layer.
// Aggregates are pure in-memory state machines: no I/O happens here.
type Root interface {
	ID() uuid.UUID
	AggregateType() string
	Version() int64
	CorrelationID() string
	// Uncommitted returns the events appended since load, in order.
	Uncommitted() []event.Event
	// MarkCommitted clears the uncommitted events. Only the persistence
	// layer calls this, after a successful commit.
	MarkCommitted()
	// Snapshot serializes the full state for storage.
	Snapshot() (Snapshot, error)
}

// Snapshot is the materialized state of one aggregate. Version is the
// optimistic concurrency token: mutations must load the snapshot first and
// confirm the in-memory version matches before committing.
type Snapshot struct {
	AggregateID   uuid.UUID
	AggregateType string
	CorrelationID string
	Version       int64
	Payload       json.RawMessage
}

// Base carries the identity, version and event bookkeeping shared by all
// aggregates. Concrete aggregates embed it and call emit on every mutation.
type Base struct {
	id            uuid.UUID
	aggregateType string
	version       int64
	correlationID string
	userID        string
	uncommitted   []event.Event
}

func newBase(id uuid.UUID, aggregateType, correlationID, userID string) Base {
	return Base{
		id:            id,
		aggregateType: aggregateType,
		correlationID: correlationID,
		userID:        userID,
	}
}

func loadBase(snap Snapshot, correlationID, userID string) Base {
	return Base{
		id:            snap.AggregateID,
		aggregateType: snap.AggregateType,
		version:       snap.Version,
		correlationID: correlationID,
		userID:        userID,
	}
}

func (b *Base) ID() uuid.UUID         { return b.id }
func (b *Base) AggregateType() string { return b.aggregateType }
func (b *Base) Version() int64        { return b.version }
func (b *Base) CorrelationID() string { return b.correlationID }

func (b *Base) Uncommitted() []event.Event {
	out := make([]event.Event, len(b.uncommitted))
	copy(out, b.uncommitted)
	return out
}

func (b *Base) MarkCommitted() {
	b.uncommitted = nil
}

// emit appends exactly one event carrying both states and bumps the
// version. The caller applies the new state only after emit returns nil,
// so a marshal failure leaves the aggregate unmutated.
func (b *Base) emit(name event.Type, prior, next any) error {
	p, err := json.Marshal(prior)
	if err != nil {
		return err
	}
	n, err := json.Marshal(next)
	if err != nil {
		return err
	}
	b.version++
	b.record(name, p, n)
	return nil
}

// emitCreated records the creation event at version 0 without bumping.
func (b *Base) emitCreated(name event.Type, state any) error {
	n, err := json.Marshal(state)
	if err != nil {
		return err
	}
	b.record(name, nil, n)
	return nil
}

func (b *Base) record(name event.Type, prior, next json.RawMessage) {
	b.uncommitted = append(b.uncommitted, event.Event{
		Name:          name,
		AggregateID:   b.id,
		AggregateType: b.aggregateType,
		Version:       b.version,
		CorrelationID: b.correlationID,
		UserID:        b.userID,
		OccurredAt:    time.Now().UTC(),
		Payload:       event.Payload{Prior: prior, Next: next},
	})
}

func unmarshalState(payload json.RawMessage, into any) error {
	if len(payload) == 0 {
		return validationErr(CodeMissingField, "snapshot payload is empty")
	}
	return json.Unmarshal(payload, into)
}

func (b *Base) snapshot(state any) (Snapshot, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		AggregateID:   b.id,
		AggregateType: b.aggregateType,
		CorrelationID: b.correlationID,
		Version:       b.version,
		Payload:       payload,
	}, nil
}
