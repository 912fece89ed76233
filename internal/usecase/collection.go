package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

type createCollectionCmd struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Service) CreateCollection(ctx context.Context, cmd Command) (any, error) {
	var in createCollectionCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	id, err := parseOptionalID(in.ID)
	if err != nil {
		return nil, err
	}
	var state aggregate.CollectionState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		col, err := aggregate.NewCollection(aggregate.CollectionParams{
			ID:          id,
			Slug:        in.Slug,
			Title:       in.Title,
			Description: in.Description,
		}, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := s.claimSlug(ctx, st, cmd, in.Slug, col.ID()); err != nil {
			return err
		}
		if err := st.Persist(col); err != nil {
			return err
		}
		state = col.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) RenameCollection(ctx context.Context, cmd Command) (any, error) {
	type renameCmd struct {
		targetRef
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	var in renameCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withCollection(ctx, cmd, in.targetRef, func(_ *persistence.Stores, col *aggregate.Collection) error {
		return col.Rename(in.Title, in.Description)
	})
}

func (s *Service) PublishCollection(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withCollection(ctx, cmd, in, func(_ *persistence.Stores, col *aggregate.Collection) error {
		return col.Publish()
	})
}

func (s *Service) UnpublishCollection(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withCollection(ctx, cmd, in, func(_ *persistence.Stores, col *aggregate.Collection) error {
		return col.Unpublish()
	})
}

// ArchiveCollection archives the collection and releases its slug for
// reuse, atomically.
func (s *Service) ArchiveCollection(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withCollection(ctx, cmd, in, func(st *persistence.Stores, col *aggregate.Collection) error {
		if err := col.Archive(); err != nil {
			return err
		}
		return s.releaseSlug(ctx, st, cmd, col.State().Slug, col.ID())
	})
}

// withCollection runs one mutation against a loaded collection and
// persists the outcome through the unit of work.
func (s *Service) withCollection(ctx context.Context, cmd Command, ref targetRef, fn func(*persistence.Stores, *aggregate.Collection) error) (aggregate.CollectionState, error) {
	id, err := parseID(ref.ID)
	if err != nil {
		return aggregate.CollectionState{}, err
	}
	var state aggregate.CollectionState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := verifyVersion(snap, ref.ExpectedVersion); err != nil {
			return err
		}
		col, err := aggregate.LoadCollection(snap, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := fn(st, col); err != nil {
			return err
		}
		if err := st.Persist(col); err != nil {
			return err
		}
		state = col.State()
		return nil
	})
	return state, err
}

// claimSlug claims slug for owner in the singleton registry, creating
// the registry on first use. The claim commits in the same write set as
// the owner, so a batch conflict rolls both back together.
func (s *Service) claimSlug(ctx context.Context, st *persistence.Stores, cmd Command, slug string, owner uuid.UUID) error {
	reg, err := s.loadSlugRegistry(ctx, st, cmd)
	if err != nil {
		return err
	}
	if err := reg.Claim(slug, owner); err != nil {
		return err
	}
	return st.Persist(reg)
}

// releaseSlug frees slug if owner holds it. A registry that was never
// created, or a slug not held, is not an error on the release path.
func (s *Service) releaseSlug(ctx context.Context, st *persistence.Stores, cmd Command, slug string, owner uuid.UUID) error {
	snap, err := st.Snapshots.Get(ctx, slugRegistryID)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil
		}
		return err
	}
	reg, err := aggregate.LoadSlugRegistry(snap, cmd.CorrelationID, cmd.UserID)
	if err != nil {
		return err
	}
	if _, held := reg.Owner(slug); !held {
		return nil
	}
	if err := reg.Release(slug, owner); err != nil {
		return err
	}
	return st.Persist(reg)
}

func (s *Service) loadSlugRegistry(ctx context.Context, st *persistence.Stores, cmd Command) (*aggregate.SlugRegistry, error) {
	snap, err := st.Snapshots.Get(ctx, slugRegistryID)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return aggregate.NewSlugRegistry(slugRegistryID, cmd.CorrelationID, cmd.UserID)
		}
		return nil, err
	}
	return aggregate.LoadSlugRegistry(snap, cmd.CorrelationID, cmd.UserID)
}
