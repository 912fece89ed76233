package aggregate

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/event"
)

// Variant drop statuses (in addition to the shared lifecycle statuses).
const (
	StatusHiddenPendingDrop  = "hidden_pending_drop"
	StatusVisiblePendingDrop = "visible_pending_drop"
)

// Embedded schedule statuses.
const (
	ScheduleStatusPending   = "pending"
	ScheduleStatusActive    = "active"
	ScheduleStatusCompleted = "completed"
	ScheduleStatusExecuted  = "executed"
	ScheduleStatusCancelled = "cancelled"
)

// Sale discount kinds.
const (
	SaleKindPercent = "percent"
	SaleKindAmount  = "amount"
)

// Drop visibility while pending.
const (
	DropHidden  = "hidden"
	DropVisible = "visible"
)

// SaleSchedule is a value object owned by a variant: a future sale window.
// GroupID links the start and end entries in the pending-schedules read
// model so the pair can be cancelled atomically.
type SaleSchedule struct {
	GroupID  uuid.UUID `json:"group_id"`
	Status   string    `json:"status"`
	Kind     string    `json:"kind"`
	Percent  float64   `json:"percent,omitempty"`
	Amount   int64     `json:"amount,omitempty"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// DropSchedule is a value object owned by a variant: a future activation.
type DropSchedule struct {
	GroupID    uuid.UUID `json:"group_id"`
	Status     string    `json:"status"`
	Visibility string    `json:"visibility"`
	DropAt     time.Time `json:"drop_at"`
}

// VariantState is the canonical serializable state of a variant. Prices
// are integer cents.
type VariantState struct {
	ID             uuid.UUID     `json:"id"`
	ProductID      uuid.UUID     `json:"product_id"`
	Kind           string        `json:"kind"`
	SKU            string        `json:"sku"`
	Title          string        `json:"title"`
	Status         string        `json:"status"`
	ListPrice      int64         `json:"list_price"`
	CompareAtPrice *int64        `json:"compare_at_price,omitempty"`
	SalePrice      *int64        `json:"sale_price,omitempty"`
	Sale           *SaleSchedule `json:"sale,omitempty"`
	Drop           *DropSchedule `json:"drop,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Variant is one purchasable variation of a product.
//
// Lifecycle: draft -> active (publish), draft|active -> archived
// (archive, terminal), draft -> hidden_pending_drop|visible_pending_drop
// (scheduleDrop) -> active (executeDrop) or -> draft (cancelScheduledDrop).
//
// The sale schedule is an orthogonal sub-machine: pending -> active
// (startScheduledSale) -> completed (endScheduledSale), with cancel
// reachable from pending or active but not completed.
type Variant struct {
	Base
	state VariantState
}

// VariantParams are the creation inputs for a variant.
type VariantParams struct {
	ID             uuid.UUID
	ProductID      uuid.UUID
	Kind           string
	SKU            string
	Title          string
	ListPrice      int64
	CompareAtPrice *int64
}

func NewVariant(p VariantParams, correlationID, userID string) (*Variant, error) {
	if p.ProductID == uuid.Nil {
		return nil, validationErr(CodeMissingField, "variant product id is required")
	}
	if p.SKU == "" {
		return nil, validationErr(CodeMissingField, "variant sku is required")
	}
	if p.Kind != KindDropship && p.Kind != KindDigital {
		return nil, validationErr(CodeMissingField, "unknown variant kind %q", p.Kind)
	}
	if p.ListPrice <= 0 {
		return nil, validationErr(CodeInvalidPrice, "list price must be positive")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	v := &Variant{
		Base: newBase(p.ID, TypeVariant, correlationID, userID),
		state: VariantState{
			ID:             p.ID,
			ProductID:      p.ProductID,
			Kind:           p.Kind,
			SKU:            p.SKU,
			Title:          p.Title,
			Status:         StatusDraft,
			ListPrice:      p.ListPrice,
			CompareAtPrice: p.CompareAtPrice,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
	}
	if err := v.emitCreated(event.TypeVariantCreated, v.state); err != nil {
		return nil, err
	}
	return v, nil
}

// LoadVariant rebuilds a variant from its snapshot.
func LoadVariant(snap Snapshot, correlationID, userID string) (*Variant, error) {
	var state VariantState
	if err := unmarshalState(snap.Payload, &state); err != nil {
		return nil, err
	}
	return &Variant{
		Base:  loadBase(snap, correlationID, userID),
		state: state,
	}, nil
}

func (v *Variant) State() VariantState { return v.state }

func (v *Variant) Snapshot() (Snapshot, error) {
	return v.snapshot(v.state)
}

func (v *Variant) UpdatePrice(listPrice int64, compareAt *int64) error {
	if v.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "cannot reprice archived variant")
	}
	if listPrice <= 0 {
		return validationErr(CodeInvalidPrice, "list price must be positive")
	}
	if compareAt != nil && *compareAt < listPrice {
		return validationErr(CodeInvalidPrice, "compare-at price must not be below list price")
	}
	if v.state.Sale != nil && v.state.Sale.Kind == SaleKindAmount && v.state.Sale.Amount > listPrice {
		return validationErr(CodeInvalidPrice, "list price would fall below the scheduled sale discount")
	}
	next := v.state
	next.ListPrice = listPrice
	next.CompareAtPrice = compareAt
	if next.Sale != nil && next.Sale.Status == ScheduleStatusActive {
		next.SalePrice = salePrice(next.ListPrice, *next.Sale)
	}
	return v.apply(event.TypeVariantPriceUpdated, next)
}

func (v *Variant) Publish() error {
	if v.state.Status != StatusDraft {
		return validationErr(CodeInvalidStatus, "cannot publish variant in status %q", v.state.Status)
	}
	next := v.state
	next.Status = StatusActive
	return v.apply(event.TypeVariantPublished, next)
}

func (v *Variant) Archive() error {
	if v.state.Status != StatusDraft && v.state.Status != StatusActive {
		return validationErr(CodeInvalidStatus, "cannot archive variant in status %q", v.state.Status)
	}
	next := v.state
	next.Status = StatusArchived
	return v.apply(event.TypeVariantArchived, next)
}

// ScheduleDrop parks a draft variant until its drop time. Visibility
// controls whether the variant is listed (but unbuyable) while pending.
func (v *Variant) ScheduleDrop(dropAt time.Time, visibility string) error {
	if v.state.Status != StatusDraft {
		return validationErr(CodeInvalidStatus, "cannot schedule drop for variant in status %q", v.state.Status)
	}
	if v.state.Drop != nil && v.state.Drop.Status == ScheduleStatusPending {
		return validationErr(CodeSchedulePending, "variant already has a pending drop")
	}
	if visibility != DropHidden && visibility != DropVisible {
		return validationErr(CodeMissingField, "unknown drop visibility %q", visibility)
	}
	next := v.state
	next.Drop = &DropSchedule{
		GroupID:    uuid.New(),
		Status:     ScheduleStatusPending,
		Visibility: visibility,
		DropAt:     dropAt.UTC(),
	}
	if visibility == DropHidden {
		next.Status = StatusHiddenPendingDrop
	} else {
		next.Status = StatusVisiblePendingDrop
	}
	return v.apply(event.TypeVariantDropScheduled, next)
}

func (v *Variant) ExecuteDrop() error {
	if v.state.Status != StatusHiddenPendingDrop && v.state.Status != StatusVisiblePendingDrop {
		return validationErr(CodeInvalidStatus, "variant has no pending drop")
	}
	next := v.state
	drop := *next.Drop
	drop.Status = ScheduleStatusExecuted
	next.Drop = &drop
	next.Status = StatusActive
	return v.apply(event.TypeVariantDropExecuted, next)
}

func (v *Variant) CancelScheduledDrop() error {
	if v.state.Status != StatusHiddenPendingDrop && v.state.Status != StatusVisiblePendingDrop {
		return validationErr(CodeInvalidStatus, "variant has no pending drop")
	}
	next := v.state
	drop := *next.Drop
	drop.Status = ScheduleStatusCancelled
	next.Drop = &drop
	next.Status = StatusDraft
	return v.apply(event.TypeVariantDropCancelled, next)
}

// ScheduleSale registers a future sale window. Percent discounts must lie
// in [0,1]; amount discounts must not exceed the list price.
func (v *Variant) ScheduleSale(kind string, percent float64, amount int64, startsAt, endsAt time.Time) error {
	if v.state.Status == StatusArchived {
		return validationErr(CodeInvalidStatus, "cannot schedule sale for archived variant")
	}
	if v.state.Sale != nil && (v.state.Sale.Status == ScheduleStatusPending || v.state.Sale.Status == ScheduleStatusActive) {
		return validationErr(CodeSchedulePending, "variant already has a pending or active sale")
	}
	switch kind {
	case SaleKindPercent:
		if percent < 0 || percent > 1 {
			return validationErr(CodeInvalidSaleValue, "percent sale value must lie in [0,1]")
		}
	case SaleKindAmount:
		if amount <= 0 {
			return validationErr(CodeInvalidSaleValue, "amount discount must be positive")
		}
		if amount > v.state.ListPrice {
			return validationErr(CodeInvalidSaleValue, "amount discount exceeds list price")
		}
	default:
		return validationErr(CodeInvalidSaleValue, "unknown sale kind %q", kind)
	}
	if !endsAt.After(startsAt) {
		return validationErr(CodeInvalidSaleValue, "sale end must follow sale start")
	}
	next := v.state
	next.Sale = &SaleSchedule{
		GroupID:  uuid.New(),
		Status:   ScheduleStatusPending,
		Kind:     kind,
		Percent:  percent,
		Amount:   amount,
		StartsAt: startsAt.UTC(),
		EndsAt:   endsAt.UTC(),
	}
	return v.apply(event.TypeVariantSaleScheduled, next)
}

// StartScheduledSale activates the pending sale and copies the discounted
// price onto the variant.
func (v *Variant) StartScheduledSale() error {
	if v.state.Sale == nil || v.state.Sale.Status != ScheduleStatusPending {
		return validationErr(CodeInvalidStatus, "variant has no pending sale")
	}
	next := v.state
	sale := *next.Sale
	sale.Status = ScheduleStatusActive
	next.Sale = &sale
	next.SalePrice = salePrice(next.ListPrice, sale)
	return v.apply(event.TypeVariantSaleStarted, next)
}

// EndScheduledSale completes the active sale and clears the sale fields.
func (v *Variant) EndScheduledSale() error {
	if v.state.Sale == nil || v.state.Sale.Status != ScheduleStatusActive {
		return validationErr(CodeInvalidStatus, "variant has no active sale")
	}
	next := v.state
	sale := *next.Sale
	sale.Status = ScheduleStatusCompleted
	next.Sale = &sale
	next.SalePrice = nil
	return v.apply(event.TypeVariantSaleEnded, next)
}

// CancelScheduledSale cancels a pending or active sale. A completed sale
// cannot be cancelled.
func (v *Variant) CancelScheduledSale() error {
	if v.state.Sale == nil || (v.state.Sale.Status != ScheduleStatusPending && v.state.Sale.Status != ScheduleStatusActive) {
		return validationErr(CodeInvalidStatus, "variant has no cancellable sale")
	}
	next := v.state
	sale := *next.Sale
	wasActive := sale.Status == ScheduleStatusActive
	sale.Status = ScheduleStatusCancelled
	next.Sale = &sale
	if wasActive {
		next.SalePrice = nil
	}
	return v.apply(event.TypeVariantSaleCancelled, next)
}

func (v *Variant) apply(name event.Type, next VariantState) error {
	next.UpdatedAt = time.Now().UTC()
	if err := v.emit(name, v.state, next); err != nil {
		return err
	}
	v.state = next
	return nil
}

func salePrice(listPrice int64, sale SaleSchedule) *int64 {
	var p int64
	switch sale.Kind {
	case SaleKindPercent:
		p = int64(math.Round(float64(listPrice) * (1 - sale.Percent)))
	case SaleKindAmount:
		p = listPrice - sale.Amount
	}
	if p < 0 {
		p = 0
	}
	return &p
}
