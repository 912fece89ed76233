package aggregate

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestVariant(t *testing.T) *Variant {
	t.Helper()
	v, err := NewVariant(VariantParams{
		ProductID: uuid.New(),
		Kind:      KindDropship,
		SKU:       "TEE-BLK-M",
		Title:     "Black Tee / M",
		ListPrice: 2500,
	}, "corr-1", "user-1")
	if err != nil {
		t.Fatalf("NewVariant returned error: %v", err)
	}
	return v
}

func TestVariant_PublishAndArchive(t *testing.T) {
	v := newTestVariant(t)
	if err := v.Publish(); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if v.State().Status != StatusActive {
		t.Fatalf("status = %q, want active", v.State().Status)
	}
	if err := v.Archive(); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if err := v.Publish(); !IsValidation(err) {
		t.Fatalf("expected validation error publishing archived variant, got %v", err)
	}
}

func TestVariant_DropLifecycle(t *testing.T) {
	v := newTestVariant(t)
	dropAt := time.Now().Add(time.Hour)
	if err := v.ScheduleDrop(dropAt, DropHidden); err != nil {
		t.Fatalf("ScheduleDrop returned error: %v", err)
	}
	if v.State().Status != StatusHiddenPendingDrop {
		t.Fatalf("status = %q, want hidden_pending_drop", v.State().Status)
	}
	if err := v.ScheduleDrop(dropAt, DropHidden); !IsValidation(err) {
		t.Fatalf("expected validation error for second drop, got %v", err)
	}
	if err := v.ExecuteDrop(); err != nil {
		t.Fatalf("ExecuteDrop returned error: %v", err)
	}
	if v.State().Status != StatusActive {
		t.Fatalf("status = %q, want active", v.State().Status)
	}
	if v.State().Drop.Status != ScheduleStatusExecuted {
		t.Fatalf("drop status = %q, want executed", v.State().Drop.Status)
	}
}

func TestVariant_CancelScheduledDropReturnsToDraft(t *testing.T) {
	v := newTestVariant(t)
	if err := v.ScheduleDrop(time.Now().Add(time.Hour), DropVisible); err != nil {
		t.Fatalf("ScheduleDrop returned error: %v", err)
	}
	if v.State().Status != StatusVisiblePendingDrop {
		t.Fatalf("status = %q, want visible_pending_drop", v.State().Status)
	}
	if err := v.CancelScheduledDrop(); err != nil {
		t.Fatalf("CancelScheduledDrop returned error: %v", err)
	}
	if v.State().Status != StatusDraft {
		t.Fatalf("status = %q, want draft", v.State().Status)
	}
}

func TestVariant_SaleLifecyclePercent(t *testing.T) {
	v := newTestVariant(t)
	start := time.Now().Add(time.Hour)
	if err := v.ScheduleSale(SaleKindPercent, 0.2, 0, start, start.Add(24*time.Hour)); err != nil {
		t.Fatalf("ScheduleSale returned error: %v", err)
	}
	if err := v.StartScheduledSale(); err != nil {
		t.Fatalf("StartScheduledSale returned error: %v", err)
	}
	if v.State().SalePrice == nil || *v.State().SalePrice != 2000 {
		t.Fatalf("sale price = %v, want 2000", v.State().SalePrice)
	}
	if err := v.EndScheduledSale(); err != nil {
		t.Fatalf("EndScheduledSale returned error: %v", err)
	}
	if v.State().SalePrice != nil {
		t.Fatalf("sale price after end = %v, want nil", *v.State().SalePrice)
	}
	if err := v.CancelScheduledSale(); !IsValidation(err) {
		t.Fatalf("expected validation error cancelling completed sale, got %v", err)
	}
}

func TestVariant_SaleValidation(t *testing.T) {
	start := time.Now().Add(time.Hour)
	end := start.Add(time.Hour)

	cases := []struct {
		name    string
		kind    string
		percent float64
		amount  int64
	}{
		{"percent above one", SaleKindPercent, 1.5, 0},
		{"negative percent", SaleKindPercent, -0.1, 0},
		{"amount exceeds list price", SaleKindAmount, 0, 9900},
		{"zero amount", SaleKindAmount, 0, 0},
		{"unknown kind", "bogo", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := newTestVariant(t)
			versionBefore := v.Version()
			err := v.ScheduleSale(tc.kind, tc.percent, tc.amount, start, end)
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if v.Version() != versionBefore {
				t.Fatalf("failed mutation changed version")
			}
			if v.State().Sale != nil {
				t.Fatalf("failed mutation attached a sale")
			}
		})
	}
}

func TestVariant_CancelActiveSaleClearsSalePrice(t *testing.T) {
	v := newTestVariant(t)
	start := time.Now().Add(time.Hour)
	if err := v.ScheduleSale(SaleKindAmount, 0, 500, start, start.Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleSale returned error: %v", err)
	}
	if err := v.StartScheduledSale(); err != nil {
		t.Fatalf("StartScheduledSale returned error: %v", err)
	}
	if v.State().SalePrice == nil || *v.State().SalePrice != 2000 {
		t.Fatalf("sale price = %v, want 2000", v.State().SalePrice)
	}
	if err := v.CancelScheduledSale(); err != nil {
		t.Fatalf("CancelScheduledSale returned error: %v", err)
	}
	if v.State().SalePrice != nil {
		t.Fatal("cancelling an active sale must clear the sale price")
	}
}

func TestVariant_SnapshotRoundTripWithSchedules(t *testing.T) {
	v := newTestVariant(t)
	start := time.Now().Add(time.Hour)
	if err := v.ScheduleSale(SaleKindPercent, 0.5, 0, start, start.Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleSale returned error: %v", err)
	}
	snap, err := v.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	loaded, err := LoadVariant(snap, "corr-2", "user-2")
	if err != nil {
		t.Fatalf("LoadVariant returned error: %v", err)
	}
	if loaded.Version() != v.Version() {
		t.Fatalf("loaded version = %d, want %d", loaded.Version(), v.Version())
	}
	if loaded.State().Sale == nil || loaded.State().Sale.GroupID != v.State().Sale.GroupID {
		t.Fatalf("sale schedule did not survive the round trip")
	}
	if !loaded.State().Sale.StartsAt.Equal(v.State().Sale.StartsAt) {
		t.Fatalf("sale start = %v, want %v", loaded.State().Sale.StartsAt, v.State().Sale.StartsAt)
	}
}

func TestVariant_UpdatePriceGuards(t *testing.T) {
	v := newTestVariant(t)
	if err := v.UpdatePrice(0, nil); !IsValidation(err) {
		t.Fatalf("expected validation error for zero price, got %v", err)
	}
	lowCompare := int64(100)
	if err := v.UpdatePrice(2500, &lowCompare); !IsValidation(err) {
		t.Fatalf("expected validation error for compare-at below list, got %v", err)
	}
	compare := int64(3000)
	if err := v.UpdatePrice(2200, &compare); err != nil {
		t.Fatalf("UpdatePrice returned error: %v", err)
	}
	if v.State().ListPrice != 2200 {
		t.Fatalf("list price = %d, want 2200", v.State().ListPrice)
	}
}
