package aggregate

import (
	"testing"

	"github.com/google/uuid"
)

func TestSlugRegistry_ClaimAndRelease(t *testing.T) {
	r, err := NewSlugRegistry(uuid.Nil, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewSlugRegistry returned error: %v", err)
	}
	owner := uuid.New()
	other := uuid.New()

	if err := r.Claim("summer-tee", owner); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if got, ok := r.Owner("summer-tee"); !ok || got != owner {
		t.Fatalf("owner = (%v,%v), want (%v,true)", got, ok, owner)
	}
	if err := r.Claim("summer-tee", other); !IsValidation(err) {
		t.Fatalf("expected validation error claiming a taken slug, got %v", err)
	}
	if err := r.Release("summer-tee", other); !IsValidation(err) {
		t.Fatalf("expected validation error releasing an unheld slug, got %v", err)
	}
	if err := r.Release("summer-tee", owner); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if _, ok := r.Owner("summer-tee"); ok {
		t.Fatal("slug still held after release")
	}
	if r.Version() != 2 {
		t.Fatalf("version = %d, want 2", r.Version())
	}
}

func TestSlugRegistry_SnapshotRoundTrip(t *testing.T) {
	r, err := NewSlugRegistry(uuid.Nil, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewSlugRegistry returned error: %v", err)
	}
	owner := uuid.New()
	if err := r.Claim("drop-001", owner); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	loaded, err := LoadSlugRegistry(snap, "corr-2", "user-2")
	if err != nil {
		t.Fatalf("LoadSlugRegistry returned error: %v", err)
	}
	if got, ok := loaded.Owner("drop-001"); !ok || got != owner {
		t.Fatalf("loaded owner = (%v,%v), want (%v,true)", got, ok, owner)
	}
}

func TestProductPositions_DenseOrdering(t *testing.T) {
	collectionID := uuid.New()
	p, err := NewProductPositions(uuid.Nil, collectionID, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewProductPositions returned error: %v", err)
	}
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for i, id := range []uuid.UUID{a, b, c} {
		if err := p.SetPosition(id, i); err != nil {
			t.Fatalf("SetPosition(%d) returned error: %v", i, err)
		}
	}
	// Move c to the front.
	if err := p.SetPosition(c, 0); err != nil {
		t.Fatalf("SetPosition move returned error: %v", err)
	}
	want := []uuid.UUID{c, a, b}
	got := p.State().Order
	if len(got) != len(want) {
		t.Fatalf("order length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if err := p.Remove(a); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if len(p.State().Order) != 2 {
		t.Fatalf("order length after remove = %d, want 2", len(p.State().Order))
	}
	if err := p.Remove(a); !IsValidation(err) {
		t.Fatalf("expected validation error removing absent product, got %v", err)
	}
	if err := p.SetPosition(uuid.New(), 99); !IsValidation(err) {
		t.Fatalf("expected validation error for out-of-range position, got %v", err)
	}
}

func TestProduct_PolicyHookRejectsMutation(t *testing.T) {
	rejectAll := PolicyFunc(func(prior, next ProductState) error {
		if next.Status == StatusActive {
			return validationErr(CodePolicyRejected, "digital products need an asset before publish")
		}
		return nil
	})
	p, err := NewProduct(ProductParams{
		Kind:  KindDigital,
		Slug:  "ebook-01",
		Title: "Ebook",
	}, rejectAll, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewProduct returned error: %v", err)
	}
	versionBefore := p.Version()
	if err := p.Publish(); !IsValidation(err) {
		t.Fatalf("expected policy rejection, got %v", err)
	}
	if p.Version() != versionBefore || p.State().Status != StatusDraft {
		t.Fatal("rejected mutation must not change state")
	}
}

func TestProduct_CollectionMembership(t *testing.T) {
	p, err := NewProduct(ProductParams{
		Kind:  KindDropship,
		Slug:  "tee",
		Title: "Tee",
	}, nil, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewProduct returned error: %v", err)
	}
	col := uuid.New()
	if err := p.AssignToCollection(col); err != nil {
		t.Fatalf("AssignToCollection returned error: %v", err)
	}
	if err := p.AssignToCollection(col); !IsValidation(err) {
		t.Fatalf("expected validation error assigning twice, got %v", err)
	}
	if err := p.RemoveFromCollection(col); err != nil {
		t.Fatalf("RemoveFromCollection returned error: %v", err)
	}
	if err := p.RemoveFromCollection(col); !IsValidation(err) {
		t.Fatalf("expected validation error removing twice, got %v", err)
	}
}
