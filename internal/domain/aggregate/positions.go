package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// ProductPositionsState is the dense product ordering for one collection.
type ProductPositionsState struct {
	ID           uuid.UUID   `json:"id"`
	CollectionID uuid.UUID   `json:"collection_id"`
	Order        []uuid.UUID `json:"order"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// ProductPositions keeps the merchandising order of products within a
// collection. Positions stay dense: removing a product shifts everything
// after it up by one.
type ProductPositions struct {
	Base
	state ProductPositionsState
}

func NewProductPositions(id, collectionID uuid.UUID, correlationID, userID string) (*ProductPositions, error) {
	if collectionID == uuid.Nil {
		return nil, validationErr(CodeMissingField, "collection id is required")
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	p := &ProductPositions{
		Base: newBase(id, TypeProductPositions, correlationID, userID),
		state: ProductPositionsState{
			ID:           id,
			CollectionID: collectionID,
			UpdatedAt:    time.Now().UTC(),
		},
	}
	if err := p.emitCreated(event.TypePositionsCreated, p.state); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProductPositions rebuilds the ordering from its snapshot.
func LoadProductPositions(snap Snapshot, correlationID, userID string) (*ProductPositions, error) {
	var state ProductPositionsState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	return &ProductPositions{
		Base:  loadBase(snap, correlationID, userID),
		state: state,
	}, nil
}

func (p *ProductPositions) State() ProductPositionsState { return p.state }

func (p *ProductPositions) Snapshot() (Snapshot, error) {
	return p.snapshot(p.state)
}

// SetPosition inserts productID at pos, or moves it there if already
// present. pos must lie within the resulting order.
func (p *ProductPositions) SetPosition(productID uuid.UUID, pos int) error {
	if productID == uuid.Nil {
		return validationErr(CodeMissingField, "product id is required")
	}
	order := make([]uuid.UUID, 0, len(p.state.Order)+1)
	for _, id := range p.state.Order {
		if id != productID {
			order = append(order, id)
		}
	}
	if pos < 0 || pos > len(order) {
		return validationErr(CodeInvalidPosition, "position %d out of range [0,%d]", pos, len(order))
	}
	order = append(order, uuid.Nil)
	copy(order[pos+1:], order[pos:])
	order[pos] = productID

	next := p.state
	next.Order = order
	return p.apply(event.TypePositionSet, next)
}

func (p *ProductPositions) Remove(productID uuid.UUID) error {
	idx := -1
	for i, id := range p.state.Order {
		if id == productID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return validationErr(CodeUnknownProduct, "product %s is not positioned in this collection", productID)
	}
	next := p.state
	next.Order = append(append([]uuid.UUID{}, p.state.Order[:idx]...), p.state.Order[idx+1:]...)
	return p.apply(event.TypePositionRemoved, next)
}

func (p *ProductPositions) apply(name event.Type, next ProductPositionsState) error {
	next.UpdatedAt = time.Now().UTC()
	if err := p.emit(name, p.state, next); err != nil {
		return err
	}
	p.state = next
	return nil
}
