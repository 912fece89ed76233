package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

type createProductCmd struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (s *Service) CreateProduct(ctx context.Context, cmd Command) (any, error) {
	var in createProductCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	id, err := parseOptionalID(in.ID)
	if err != nil {
		return nil, err
	}
	var state aggregate.ProductState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		prod, err := aggregate.NewProduct(aggregate.ProductParams{
			ID:          id,
			Kind:        in.Kind,
			Slug:        in.Slug,
			Title:       in.Title,
			Description: in.Description,
			Tags:        in.Tags,
		}, s.policyFor(in.Kind), cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := s.claimSlug(ctx, st, cmd, in.Slug, prod.ID()); err != nil {
			return err
		}
		if err := st.Persist(prod); err != nil {
			return err
		}
		state = prod.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) UpdateProductDetails(ctx context.Context, cmd Command) (any, error) {
	type updateCmd struct {
		targetRef
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	var in updateCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in.targetRef, func(_ *persistence.Stores, p *aggregate.Product) error {
		return p.UpdateDetails(in.Title, in.Description, in.Tags)
	})
}

func (s *Service) PublishProduct(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in, func(_ *persistence.Stores, p *aggregate.Product) error {
		return p.Publish()
	})
}

func (s *Service) UnpublishProduct(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in, func(_ *persistence.Stores, p *aggregate.Product) error {
		return p.Unpublish()
	})
}

// ArchiveProduct archives the product, releases its slug and removes it
// from every collection's ordering, atomically.
func (s *Service) ArchiveProduct(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in, func(st *persistence.Stores, p *aggregate.Product) error {
		collectionIDs := p.State().CollectionIDs
		if err := p.Archive(); err != nil {
			return err
		}
		if err := s.releaseSlug(ctx, st, cmd, p.State().Slug, p.ID()); err != nil {
			return err
		}
		for _, collectionID := range collectionIDs {
			if err := s.removePosition(ctx, st, cmd, collectionID, p.ID()); err != nil {
				return err
			}
		}
		return nil
	})
}

type productCollectionCmd struct {
	targetRef
	CollectionID string `json:"collectionId"`
}

func (s *Service) AssignProductToCollection(ctx context.Context, cmd Command) (any, error) {
	var in productCollectionCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	collectionID, err := parseID(in.CollectionID)
	if err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in.targetRef, func(_ *persistence.Stores, p *aggregate.Product) error {
		return p.AssignToCollection(collectionID)
	})
}

// RemoveProductFromCollection drops the membership and the product's
// slot in the collection's ordering together.
func (s *Service) RemoveProductFromCollection(ctx context.Context, cmd Command) (any, error) {
	var in productCollectionCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	collectionID, err := parseID(in.CollectionID)
	if err != nil {
		return nil, err
	}
	return s.withProduct(ctx, cmd, in.targetRef, func(st *persistence.Stores, p *aggregate.Product) error {
		if err := p.RemoveFromCollection(collectionID); err != nil {
			return err
		}
		return s.removePosition(ctx, st, cmd, collectionID, p.ID())
	})
}

type setPositionCmd struct {
	CollectionID string `json:"collectionId"`
	ProductID    string `json:"productId"`
	Position     int    `json:"position"`
}

// SetProductPosition places a product at a dense position in one
// collection's ordering, creating the ordering aggregate on first use.
func (s *Service) SetProductPosition(ctx context.Context, cmd Command) (any, error) {
	var in setPositionCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	collectionID, err := parseID(in.CollectionID)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(in.ProductID)
	if err != nil {
		return nil, err
	}
	var state aggregate.ProductPositionsState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		pos, err := s.loadPositions(ctx, st, cmd, collectionID)
		if err != nil {
			return err
		}
		if err := pos.SetPosition(productID, in.Position); err != nil {
			return err
		}
		if err := st.Persist(pos); err != nil {
			return err
		}
		state = pos.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) RemoveProductPosition(ctx context.Context, cmd Command) (any, error) {
	var in setPositionCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	collectionID, err := parseID(in.CollectionID)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(in.ProductID)
	if err != nil {
		return nil, err
	}
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		return s.removePosition(ctx, st, cmd, collectionID, productID)
	})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) withProduct(ctx context.Context, cmd Command, ref targetRef, fn func(*persistence.Stores, *aggregate.Product) error) (aggregate.ProductState, error) {
	id, err := parseID(ref.ID)
	if err != nil {
		return aggregate.ProductState{}, err
	}
	var state aggregate.ProductState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := verifyVersion(snap, ref.ExpectedVersion); err != nil {
			return err
		}
		var kindProbe struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(snap.Payload, &kindProbe); err != nil {
			return err
		}
		prod, err := aggregate.LoadProduct(snap, s.policyFor(kindProbe.Kind), cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := fn(st, prod); err != nil {
			return err
		}
		if err := st.Persist(prod); err != nil {
			return err
		}
		state = prod.State()
		return nil
	})
	return state, err
}

func (s *Service) loadPositions(ctx context.Context, st *persistence.Stores, cmd Command, collectionID uuid.UUID) (*aggregate.ProductPositions, error) {
	id := positionsID(collectionID)
	snap, err := st.Snapshots.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return aggregate.NewProductPositions(id, collectionID, cmd.CorrelationID, cmd.UserID)
		}
		return nil, err
	}
	return aggregate.LoadProductPositions(snap, cmd.CorrelationID, cmd.UserID)
}

// removePosition drops productID from collectionID's ordering if the
// ordering exists and lists it. Absence is fine on this path.
func (s *Service) removePosition(ctx context.Context, st *persistence.Stores, cmd Command, collectionID, productID uuid.UUID) error {
	snap, err := st.Snapshots.Get(ctx, positionsID(collectionID))
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil
		}
		return err
	}
	pos, err := aggregate.LoadProductPositions(snap, cmd.CorrelationID, cmd.UserID)
	if err != nil {
		return err
	}
	listed := false
	for _, id := range pos.State().Order {
		if id == productID {
			listed = true
			break
		}
	}
	if !listed {
		return nil
	}
	if err := pos.Remove(productID); err != nil {
		return err
	}
	return st.Persist(pos)
}
