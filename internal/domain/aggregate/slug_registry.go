package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// SlugRegistryState maps slugs to their owning aggregate ids.
type SlugRegistryState struct {
	ID        uuid.UUID            `json:"id"`
	Slugs     map[string]uuid.UUID `json:"slugs"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SlugRegistry enforces slug uniqueness across the catalog. A slug can be
// held by at most one owner; releasing requires holding it.
type SlugRegistry struct {
	Base
	state SlugRegistryState
}

func NewSlugRegistry(id uuid.UUID, correlationID, userID string) (*SlugRegistry, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	r := &SlugRegistry{
		Base: newBase(id, TypeSlugRegistry, correlationID, userID),
		state: SlugRegistryState{
			ID:        id,
			Slugs:     map[string]uuid.UUID{},
			UpdatedAt: time.Now().UTC(),
		},
	}
	if err := r.emitCreated(event.TypeSlugRegistryCreated, r.state); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadSlugRegistry rebuilds the registry from its snapshot.
func LoadSlugRegistry(snap Snapshot, correlationID, userID string) (*SlugRegistry, error) {
	var state SlugRegistryState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	if state.Slugs == nil {
		state.Slugs = map[string]uuid.UUID{}
	}
	return &SlugRegistry{
		Base:  loadBase(snap, correlationID, userID),
		state: state,
	}, nil
}

func (r *SlugRegistry) State() SlugRegistryState { return r.state }

func (r *SlugRegistry) Snapshot() (Snapshot, error) {
	return r.snapshot(r.state)
}

// Owner returns the holder of slug, if any.
func (r *SlugRegistry) Owner(slug string) (uuid.UUID, bool) {
	owner, ok := r.state.Slugs[slug]
	return owner, ok
}

func (r *SlugRegistry) Claim(slug string, owner uuid.UUID) error {
	if slug == "" {
		return validationErr(CodeMissingField, "slug is required")
	}
	if owner == uuid.Nil {
		return validationErr(CodeMissingField, "slug owner is required")
	}
	if held, ok := r.state.Slugs[slug]; ok {
		return validationErr(CodeSlugTaken, "slug %q is already claimed by %s", slug, held)
	}
	next := r.cloneState()
	next.Slugs[slug] = owner
	return r.apply(event.TypeSlugClaimed, next)
}

func (r *SlugRegistry) Release(slug string, owner uuid.UUID) error {
	held, ok := r.state.Slugs[slug]
	if !ok || held != owner {
		return validationErr(CodeSlugNotHeld, "slug %q is not held by %s", slug, owner)
	}
	next := r.cloneState()
	delete(next.Slugs, slug)
	return r.apply(event.TypeSlugReleased, next)
}

func (r *SlugRegistry) cloneState() SlugRegistryState {
	next := r.state
	next.Slugs = make(map[string]uuid.UUID, len(r.state.Slugs)+1)
	for k, v := range r.state.Slugs {
		next.Slugs[k] = v
	}
	return next
}

func (r *SlugRegistry) apply(name event.Type, next SlugRegistryState) error {
	next.UpdatedAt = time.Now().UTC()
	if err := r.emit(name, r.state, next); err != nil {
		return err
	}
	r.state = next
	return nil
}
