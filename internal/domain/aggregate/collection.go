package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// Lifecycle statuses shared by collections, products and variants.
const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// CollectionState is the canonical serializable state of a collection.
type CollectionState struct {
	ID          uuid.UUID `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Collection groups products for merchandising. State machine:
// draft -> active (publish), active -> draft (unpublish),
// draft|active -> archived (archive, terminal).
type Collection struct {
	Base
	state CollectionState
}

// CollectionParams are the creation inputs for a collection.
type CollectionParams struct {
	ID          uuid.UUID
	Slug        string
	Title       string
	Description string
}

func NewCollection(p CollectionParams, correlationID, userID string) (*Collection, error) {
	if p.Title == "" {
		return nil, validationErr(CodeMissingField, "collection title is required")
	}
	if p.Slug == "" {
		return nil, validationErr(CodeMissingField, "collection slug is required")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	c := &Collection{
		Base: newBase(p.ID, TypeCollection, correlationID, userID),
		state: CollectionState{
			ID:          p.ID,
			Slug:        p.Slug,
			Title:       p.Title,
			Description: p.Description,
			Status:      StatusDraft,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
	}
	if err := c.emitCreated(event.TypeCollectionCreated, c.state); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCollection rebuilds a collection from its snapshot. No events are
// emitted.
func LoadCollection(snap Snapshot, correlationID, userID string) (*Collection, error) {
	var state CollectionState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	return &Collection{
		Base:  loadBase(snap, correlationID, userID),
		state: state,
	}, nil
}

func (c *Collection) State() CollectionState { return c.state }

func (c *Collection) Snapshot() (Snapshot, error) {
	return c.snapshot(c.state)
}

func (c *Collection) Rename(title, description string) error {
	if c.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "cannot rename archived collection")
	}
	if title == "" {
		return validationErr(CodeMissingField, "collection title is required")
	}
	next := c.state
	next.Title = title
	next.Description = description
	return c.apply(event.TypeCollectionRenamed, next)
}

func (c *Collection) Publish() error {
	if c.state.Status != StatusDraft {
		return validationErr(CodeInvalidStatus, "cannot publish collection in status %q", c.state.Status)
	}
	next := c.state
	next.Status = StatusActive
	return c.apply(event.TypeCollectionPublished, next)
}

func (c *Collection) Unpublish() error {
	if c.state.Status != StatusActive {
		return validationErr(CodeInvalidStatus, "cannot unpublish collection in status %q", c.state.Status)
	}
	next := c.state
	next.Status = StatusDraft
	return c.apply(event.TypeCollectionUnpublished, next)
}

func (c *Collection) Archive() error {
	if c.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "collection is already archived")
	}
	next := c.state
	next.Status = StatusArchived
	return c.apply(event.TypeCollectionArchived, next)
}

func (c *Collection) apply(name event.Type, next CollectionState) error {
	next.UpdatedAt = time.Now().UTC()
	if err := c.emit(name, c.state, next); err != nil {
		return err
	}
	c.state = next
	return nil
}
