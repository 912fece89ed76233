package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of a domain event.
type Type string

// Collection lifecycle events.
const (
	TypeCollectionCreated     Type = "collection.created"
	TypeCollectionRenamed     Type = "collection.renamed"
	TypeCollectionPublished   Type = "collection.published"
	TypeCollectionUnpublished Type = "collection.unpublished"
	TypeCollectionArchived    Type = "collection.archived"
)

// Product lifecycle events.
const (
	TypeProductCreated               Type = "product.created"
	TypeProductUpdated               Type = "product.updated"
	TypeProductPublished             Type = "product.published"
	TypeProductUnpublished           Type = "product.unpublished"
	TypeProductArchived              Type = "product.archived"
	TypeProductAssignedToCollection  Type = "product.assigned_to_collection"
	TypeProductRemovedFromCollection Type = "product.removed_from_collection"
)

// Variant lifecycle events.
const (
	TypeVariantCreated       Type = "variant.created"
	TypeVariantPriceUpdated  Type = "variant.price_updated"
	TypeVariantPublished     Type = "variant.published"
	TypeVariantArchived      Type = "variant.archived"
	TypeVariantDropScheduled Type = "variant.drop_scheduled"
	TypeVariantDropExecuted  Type = "variant.drop_executed"
	TypeVariantDropCancelled Type = "variant.drop_cancelled"
	TypeVariantSaleScheduled Type = "variant.sale_scheduled"
	TypeVariantSaleStarted   Type = "variant.sale_started"
	TypeVariantSaleEnded     Type = "variant.sale_ended"
	TypeVariantSaleCancelled Type = "variant.sale_cancelled"
)

// Slug registry events.
const (
	TypeSlugRegistryCreated Type = "slug_registry.created"
	TypeSlugClaimed         Type = "slug_registry.slug_claimed"
	TypeSlugReleased        Type = "slug_registry.slug_released"
)

// Product position events.
const (
	TypePositionsCreated Type = "product_positions.created"
	TypePositionSet      Type = "product_positions.position_set"
	TypePositionRemoved  Type = "product_positions.position_removed"
)

// Schedule lifecycle events.
const (
	TypeScheduleCreated   Type = "schedule.created"
	TypeScheduleExecuted  Type = "schedule.executed"
	TypeScheduleFailed    Type = "schedule.failed"
	TypeScheduleRetried   Type = "schedule.retried"
	TypeScheduleCancelled Type = "schedule.cancelled"
)

// Payload carries the aggregate state on both sides of a transition.
type Payload struct {
	Prior json.RawMessage `json:"prior"`
	Next  json.RawMessage `json:"next"`
}

// Event is an immutable record of one aggregate state transition.
// Version equals the aggregate's version after the transition; the pair
// (AggregateID, Version) is the event store's primary key.
type Event struct {
	Name          Type
	AggregateID   uuid.UUID
	AggregateType string
	Version       int64
	CorrelationID string
	UserID        string
	OccurredAt    time.Time
	Payload       Payload
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return t != ""
}

// Family returns the aggregate family prefix of the event type
// (e.g. "variant" for "variant.sale_started").
func (t Type) Family() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
