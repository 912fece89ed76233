package aggregate

import (
	"testing"

	"github.com/google/uuid"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	c, err := NewCollection(CollectionParams{
		Slug:  "summer-drop",
		Title: "Summer Drop",
	}, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewCollection returned error: %v", err)
	}
	return c
}

func TestNewCollection_StartsAtVersionZero(t *testing.T) {
	c := newTestCollection(t)
	if c.Version() != 0 {
		t.Fatalf("version = %d, want 0", c.Version())
	}
	events := c.Uncommitted()
	if len(events) != 1 {
		t.Fatalf("uncommitted events = %d, want 1", len(events))
	}
	if events[0].Name != "collection.created" {
		t.Fatalf("event name = %q, want collection.created", events[0].Name)
	}
	if events[0].Version != 0 {
		t.Fatalf("event version = %d, want 0", events[0].Version)
	}
	if c.State().Status != StatusDraft {
		t.Fatalf("status = %q, want draft", c.State().Status)
	}
}

func TestNewCollection_RequiresTitleAndSlug(t *testing.T) {
	if _, err := NewCollection(CollectionParams{Slug: "s"}, "c", "u"); !IsValidation(err) {
		t.Fatalf("expected validation error for missing title, got %v", err)
	}
	if _, err := NewCollection(CollectionParams{Title: "t"}, "c", "u"); !IsValidation(err) {
		t.Fatalf("expected validation error for missing slug, got %v", err)
	}
}

func TestCollection_VersionTracksMutations(t *testing.T) {
	c := newTestCollection(t)
	if err := c.Publish(); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if err := c.Unpublish(); err != nil {
		t.Fatalf("Unpublish returned error: %v", err)
	}
	if err := c.Publish(); err != nil {
		t.Fatalf("second Publish returned error: %v", err)
	}
	if c.Version() != 3 {
		t.Fatalf("version = %d, want 3", c.Version())
	}
	// created + three mutations
	if got := len(c.Uncommitted()); got != 4 {
		t.Fatalf("uncommitted events = %d, want 4", got)
	}
}

func TestCollection_EventCarriesBothStates(t *testing.T) {
	c := newTestCollection(t)
	if err := c.Publish(); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	events := c.Uncommitted()
	last := events[len(events)-1]
	if last.Version != 1 {
		t.Fatalf("event version = %d, want 1", last.Version)
	}
	if last.CorrelationID != "corr-1" || last.UserID != "user-1" {
		t.Fatalf("event identity = (%q,%q), want (corr-1,user-1)", last.CorrelationID, last.UserID)
	}
	if len(last.Payload.Prior) == 0 || len(last.Payload.Next) == 0 {
		t.Fatal("event payload must carry prior and next states")
	}
}

func TestCollection_SnapshotRoundTrip(t *testing.T) {
	c := newTestCollection(t)
	if err := c.Publish(); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	snap, err := c.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	loaded, err := LoadCollection(snap, "corr-2", "user-2")
	if err != nil {
		t.Fatalf("LoadCollection returned error: %v", err)
	}
	if loaded.Version() != c.Version() {
		t.Fatalf("loaded version = %d, want %d", loaded.Version(), c.Version())
	}
	if loaded.State() != c.State() {
		t.Fatalf("loaded state = %+v, want %+v", loaded.State(), c.State())
	}
	if got := len(loaded.Uncommitted()); got != 0 {
		t.Fatalf("loading a snapshot emitted %d events, want 0", got)
	}
}

func TestCollection_ArchiveIsTerminal(t *testing.T) {
	c := newTestCollection(t)
	if err := c.Archive(); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	versionBefore := c.Version()
	stateBefore := c.State()

	if err := c.Archive(); !IsValidation(err) {
		t.Fatalf("expected validation error on double archive, got %v", err)
	}
	if err := c.Publish(); !IsValidation(err) {
		t.Fatalf("expected validation error publishing archived collection, got %v", err)
	}
	if c.Version() != versionBefore {
		t.Fatalf("failed mutation changed version: %d -> %d", versionBefore, c.Version())
	}
	if c.State() != stateBefore {
		t.Fatalf("failed mutation changed state: %+v -> %+v", stateBefore, c.State())
	}
}

func TestCollection_MarkCommittedClearsEvents(t *testing.T) {
	c := newTestCollection(t)
	c.MarkCommitted()
	if got := len(c.Uncommitted()); got != 0 {
		t.Fatalf("uncommitted events after commit = %d, want 0", got)
	}
	if c.ID() == uuid.Nil {
		t.Fatal("collection id must be assigned")
	}
}
