package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// Product kinds.
const (
	KindDropship = "dropship"
	KindDigital  = "digital"
)

// ValidationPolicy is the pluggable per-kind business rule hook. The
// aggregate consults it before mutating; a non-nil error aborts the
// mutation with no state change.
type ValidationPolicy interface {
	Validate(prior, next ProductState) error
}

// PolicyFunc adapts a function to a ValidationPolicy.
type PolicyFunc func(prior, next ProductState) error

func (f PolicyFunc) Validate(prior, next ProductState) error { return f(prior, next) }

// ProductState is the canonical serializable state of a product.
type ProductState struct {
	ID            uuid.UUID   `json:"id"`
	Kind          string      `json:"kind"`
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Tags          []string    `json:"tags,omitempty"`
	CollectionIDs []uuid.UUID `json:"collection_ids,omitempty"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Product is a sellable item of a given kind (dropship or digital). Kind
// never changes after creation; kind-specific rules live in the injected
// ValidationPolicy, not here.
type Product struct {
	Base
	state  ProductState
	policy ValidationPolicy
}

// ProductParams are the creation inputs for a product.
type ProductParams struct {
	ID          uuid.UUID
	Kind        string
	Slug        string
	Title       string
	Description string
	Tags        []string
}

func NewProduct(p ProductParams, policy ValidationPolicy, correlationID, userID string) (*Product, error) {
	if p.Kind != KindDropship && p.Kind != KindDigital {
		return nil, validationErr(CodeMissingField, "unknown product kind %q", p.Kind)
	}
	if p.Title == "" {
		return nil, validationErr(CodeMissingField, "product title is required")
	}
	if p.Slug == "" {
		return nil, validationErr(CodeMissingField, "product slug is required")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	state := ProductState{
		ID:          p.ID,
		Kind:        p.Kind,
		Slug:        p.Slug,
		Title:       p.Title,
		Description: p.Description,
		Tags:        p.Tags,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if policy != nil {
		if err := policy.Validate(ProductState{}, state); err != nil {
			return nil, validationErr(CodePolicyRejected, "%v", err)
		}
	}
	prod := &Product{
		Base:   newBase(p.ID, TypeProduct, correlationID, userID),
		state:  state,
		policy: policy,
	}
	if err := prod.emitCreated(event.TypeProductCreated, prod.state); err != nil {
		return nil, err
	}
	return prod, nil
}

// LoadProduct rebuilds a product from its snapshot.
func LoadProduct(snap Snapshot, policy ValidationPolicy, correlationID, userID string) (*Product, error) {
	var state ProductState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	return &Product{
		Base:   loadBase(snap, correlationID, userID),
		state:  state,
		policy: policy,
	}, nil
}

func (p *Product) State() ProductState { return p.state }

func (p *Product) Snapshot() (Snapshot, error) {
	return p.snapshot(p.state)
}

func (p *Product) UpdateDetails(title, description string, tags []string) error {
	if p.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "cannot update archived product")
	}
	if title == "" {
		return validationErr(CodeMissingField, "product title is required")
	}
	next := p.state
	next.Title = title
	next.Description = description
	next.Tags = tags
	return p.apply(event.TypeProductUpdated, next)
}

func (p *Product) Publish() error {
	if p.state.Status != StatusDraft {
		return validationErr(CodeInvalidStatus, "cannot publish product in status %q", p.state.Status)
	}
	next := p.state
	next.Status = StatusActive
	return p.apply(event.TypeProductPublished, next)
}

func (p *Product) Unpublish() error {
	if p.state.Status != StatusActive {
		return validationErr(CodeInvalidStatus, "cannot unpublish product in status %q", p.state.Status)
	}
	next := p.state
	next.Status = StatusDraft
	return p.apply(event.TypeProductUnpublished, next)
}

func (p *Product) Archive() error {
	if p.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "product is already archived")
	}
	next := p.state
	next.Status = StatusArchived
	return p.apply(event.TypeProductArchived, next)
}

func (p *Product) AssignToCollection(collectionID uuid.UUID) error {
	if p.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "cannot assign archived product")
	}
	for _, id := range p.state.CollectionIDs {
		if id == collectionID {
			return validationErr(CodeInvalidStatus, "product already assigned to collection %s", collectionID)
		}
	}
	next := p.state
	next.CollectionIDs = append(append([]uuid.UUID{}, p.state.CollectionIDs...), collectionID)
	return p.apply(event.TypeProductAssignedToCollection, next)
}

func (p *Product) RemoveFromCollection(collectionID uuid.UUID) error {
	idx := -1
	for i, id := range p.state.CollectionIDs {
		if id == collectionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return validationErr(CodeInvalidStatus, "product is not assigned to collection %s", collectionID)
	}
	next := p.state
	next.CollectionIDs = append(append([]uuid.UUID{}, p.state.CollectionIDs[:idx]...), p.state.CollectionIDs[idx+1:]...)
	return p.apply(event.TypeProductRemovedFromCollection, next)
}

func (p *Product) apply(name event.Type, next ProductState) error {
	if p.policy != nil {
		if err := p.policy.Validate(p.state, next); err != nil {
			return validationErr(CodePolicyRejected, "%v", err)
		}
	}
	next.UpdatedAt = time.Now().UTC()
	if err := p.emit(name, p.state, next); err != nil {
		return err
	}
	p.state = next
	return nil
}
