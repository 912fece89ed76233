package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
)

type createVariantCmd struct {
	ID             string `json:"id"`
	ProductID      string `json:"productId"`
	Kind           string `json:"kind"`
	SKU            string `json:"sku"`
	Title          string `json:"title"`
	ListPrice      int64  `json:"listPrice"`
	CompareAtPrice *int64 `json:"compareAtPrice"`
}

func (s *Service) CreateVariant(ctx context.Context, cmd Command) (any, error) {
	var in createVariantCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	id, err := parseOptionalID(in.ID)
	if err != nil {
		return nil, err
	}
	productID, err := parseID(in.ProductID)
	if err != nil {
		return nil, err
	}
	var state aggregate.VariantState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		v, err := aggregate.NewVariant(aggregate.VariantParams{
			ID:             id,
			ProductID:      productID,
			Kind:           in.Kind,
			SKU:            in.SKU,
			Title:          in.Title,
			ListPrice:      in.ListPrice,
			CompareAtPrice: in.CompareAtPrice,
		}, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := st.Persist(v); err != nil {
			return err
		}
		state = v.State()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) UpdateVariantPrice(ctx context.Context, cmd Command) (any, error) {
	type priceCmd struct {
		targetRef
		ListPrice      int64  `json:"listPrice"`
		CompareAtPrice *int64 `json:"compareAtPrice"`
	}
	var in priceCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in.targetRef, func(_ *persistence.Stores, v *aggregate.Variant) error {
		return v.UpdatePrice(in.ListPrice, in.CompareAtPrice)
	})
}

func (s *Service) PublishVariant(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(_ *persistence.Stores, v *aggregate.Variant) error {
		return v.Publish()
	})
}

// ArchiveVariant archives the variant and withdraws any pending sale or
// drop rows so the poller never runs a window for a dead variant.
func (s *Service) ArchiveVariant(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(st *persistence.Stores, v *aggregate.Variant) error {
		if err := v.Archive(); err != nil {
			return err
		}
		state := v.State()
		if state.Sale != nil && (state.Sale.Status == aggregate.ScheduleStatusPending || state.Sale.Status == aggregate.ScheduleStatusActive) {
			st.PendingSchedules.DeleteGroup(state.Sale.GroupID)
		}
		return nil
	})
}

type scheduleDropCmd struct {
	targetRef
	DropAt     time.Time `json:"dropAt"`
	Visibility string    `json:"visibility"`
}

// ScheduleVariantDrop parks the variant until its drop time and projects
// the window into the pending-schedules read model in the same write
// set.
func (s *Service) ScheduleVariantDrop(ctx context.Context, cmd Command) (any, error) {
	var in scheduleDropCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	if in.DropAt.IsZero() {
		return nil, fmt.Errorf("%w: dropAt is required", ErrBadPayload)
	}
	return s.withVariant(ctx, cmd, in.targetRef, func(st *persistence.Stores, v *aggregate.Variant) error {
		if err := v.ScheduleDrop(in.DropAt, in.Visibility); err != nil {
			return err
		}
		drop := v.State().Drop
		st.PendingSchedules.Save(entity.PendingScheduleRecord{
			ID:                  uuid.New(),
			ScheduleGroupID:     drop.GroupID,
			TargetAggregateID:   v.ID(),
			TargetAggregateType: aggregate.TypeVariant,
			CommandType:         "executeVariantDrop",
			DueAt:               drop.DropAt,
			Status:              aggregate.SchedulePending,
			CorrelationID:       cmd.CorrelationID,
		})
		return nil
	})
}

func (s *Service) ExecuteVariantDrop(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(_ *persistence.Stores, v *aggregate.Variant) error {
		return v.ExecuteDrop()
	})
}

// CancelVariantDrop returns the variant to draft and removes the drop's
// pending row, so the withdrawn window can never fire.
func (s *Service) CancelVariantDrop(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(st *persistence.Stores, v *aggregate.Variant) error {
		if err := v.CancelScheduledDrop(); err != nil {
			return err
		}
		st.PendingSchedules.DeleteGroup(v.State().Drop.GroupID)
		return nil
	})
}

type scheduleSaleCmd struct {
	targetRef
	Kind     string    `json:"kind"`
	Percent  float64   `json:"percent"`
	Amount   int64     `json:"amount"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// ScheduleVariantSale registers a sale window and projects its start and
// end as two pending rows sharing one schedule group, so cancelling the
// sale withdraws both at once.
func (s *Service) ScheduleVariantSale(ctx context.Context, cmd Command) (any, error) {
	var in scheduleSaleCmd
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in.targetRef, func(st *persistence.Stores, v *aggregate.Variant) error {
		if err := v.ScheduleSale(in.Kind, in.Percent, in.Amount, in.StartsAt, in.EndsAt); err != nil {
			return err
		}
		sale := v.State().Sale
		st.PendingSchedules.Save(entity.PendingScheduleRecord{
			ID:                  uuid.New(),
			ScheduleGroupID:     sale.GroupID,
			TargetAggregateID:   v.ID(),
			TargetAggregateType: aggregate.TypeVariant,
			CommandType:         "startVariantSale",
			DueAt:               sale.StartsAt,
			Status:              aggregate.SchedulePending,
			CorrelationID:       cmd.CorrelationID,
		})
		st.PendingSchedules.Save(entity.PendingScheduleRecord{
			ID:                  uuid.New(),
			ScheduleGroupID:     sale.GroupID,
			TargetAggregateID:   v.ID(),
			TargetAggregateType: aggregate.TypeVariant,
			CommandType:         "endVariantSale",
			DueAt:               sale.EndsAt,
			Status:              aggregate.SchedulePending,
			CorrelationID:       cmd.CorrelationID,
		})
		return nil
	})
}

func (s *Service) StartVariantSale(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(_ *persistence.Stores, v *aggregate.Variant) error {
		return v.StartScheduledSale()
	})
}

func (s *Service) EndVariantSale(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(_ *persistence.Stores, v *aggregate.Variant) error {
		return v.EndScheduledSale()
	})
}

// CancelVariantSale cancels the pending or active sale and deletes the
// whole schedule group, removing whichever of the start/end rows still
// waits.
func (s *Service) CancelVariantSale(ctx context.Context, cmd Command) (any, error) {
	var in targetRef
	if err := decode(cmd.Payload, &in); err != nil {
		return nil, err
	}
	return s.withVariant(ctx, cmd, in, func(st *persistence.Stores, v *aggregate.Variant) error {
		if err := v.CancelScheduledSale(); err != nil {
			return err
		}
		st.PendingSchedules.DeleteGroup(v.State().Sale.GroupID)
		return nil
	})
}

func (s *Service) withVariant(ctx context.Context, cmd Command, ref targetRef, fn func(*persistence.Stores, *aggregate.Variant) error) (aggregate.VariantState, error) {
	id, err := parseID(ref.ID)
	if err != nil {
		return aggregate.VariantState{}, err
	}
	var state aggregate.VariantState
	err = s.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		snap, err := st.Snapshots.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := verifyVersion(snap, ref.ExpectedVersion); err != nil {
			return err
		}
		v, err := aggregate.LoadVariant(snap, cmd.CorrelationID, cmd.UserID)
		if err != nil {
			return err
		}
		if err := fn(st, v); err != nil {
			return err
		}
		if err := st.Persist(v); err != nil {
			return err
		}
		state = v.State()
		return nil
	})
	return state, err
}
