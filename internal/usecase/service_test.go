package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/scheduler"
)

func newServiceEnv(t *testing.T) (*Service, *Dispatcher, *persistence.UnitOfWork, *persistence.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := persistence.NewWithDialector(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Conn.AutoMigrate(
		&entity.EventRecord{},
		&entity.SnapshotRecord{},
		&entity.OutboxEvent{},
		&entity.ScheduleRecord{},
		&entity.PendingScheduleRecord{},
		&entity.IdempotencyKey{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(db.Close)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	batcher := persistence.NewBatcher(db, log, persistence.BatcherConfig{FlushInterval: time.Millisecond})
	batcher.Start()
	t.Cleanup(batcher.Stop)

	uow := persistence.NewUnitOfWork(db, batcher)
	svc := NewService(uow, log)
	return svc, svc.Dispatcher(), uow, db
}

func dispatch(t *testing.T, d *Dispatcher, commandType string, payload any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return d.Dispatch(context.Background(), Command{
		Type:          commandType,
		Payload:       raw,
		UserID:        "tester",
		CorrelationID: uuid.NewString(),
	})
}

func mustDispatch(t *testing.T, d *Dispatcher, commandType string, payload any) any {
	t.Helper()
	out, err := dispatch(t, d, commandType, payload)
	if err != nil {
		t.Fatalf("%s: %v", commandType, err)
	}
	return out
}

func TestDispatch_SlugClaimReleaseLifecycle(t *testing.T) {
	_, d, _, _ := newServiceEnv(t)

	out := mustDispatch(t, d, "createCollection", map[string]any{
		"slug":  "summer",
		"title": "Summer",
	})
	first := out.(aggregate.CollectionState)
	if first.Status != aggregate.StatusDraft {
		t.Fatalf("status = %q, want draft", first.Status)
	}

	_, err := dispatch(t, d, "createCollection", map[string]any{
		"slug":  "summer",
		"title": "Summer again",
	})
	var verr *aggregate.ValidationError
	if !errors.As(err, &verr) || verr.Code != aggregate.CodeSlugTaken {
		t.Fatalf("duplicate slug err = %v, want slug_taken validation error", err)
	}

	mustDispatch(t, d, "archiveCollection", map[string]any{"id": first.ID.String()})

	// Archiving released the slug, so a new collection can claim it.
	out = mustDispatch(t, d, "createCollection", map[string]any{
		"slug":  "summer",
		"title": "Summer reborn",
	})
	if out.(aggregate.CollectionState).ID == first.ID {
		t.Fatal("second collection reused the first id")
	}
}

func TestDispatch_UnknownCommandType(t *testing.T) {
	_, d, _, _ := newServiceEnv(t)
	_, err := dispatch(t, d, "launchRocket", map[string]any{})
	if !errors.Is(err, repository.ErrNoHandler) {
		t.Fatalf("err = %v, want ErrNoHandler", err)
	}
}

func TestDispatch_MalformedIDRejected(t *testing.T) {
	_, d, _, _ := newServiceEnv(t)
	_, err := dispatch(t, d, "publishCollection", map[string]any{"id": "not-a-uuid"})
	if !errors.Is(err, ErrBadPayload) {
		t.Fatalf("err = %v, want ErrBadPayload", err)
	}
}

func TestDispatch_ExpectedVersionGuard(t *testing.T) {
	_, d, _, _ := newServiceEnv(t)

	out := mustDispatch(t, d, "createCollection", map[string]any{
		"slug":  "guarded",
		"title": "Guarded",
	})
	id := out.(aggregate.CollectionState).ID.String()

	stale := int64(7)
	_, err := dispatch(t, d, "renameCollection", map[string]any{
		"id":              id,
		"expectedVersion": stale,
		"title":           "Renamed",
	})
	if !errors.Is(err, repository.ErrVersionConflict) {
		t.Fatalf("stale rename err = %v, want ErrVersionConflict", err)
	}

	out = mustDispatch(t, d, "renameCollection", map[string]any{
		"id":              id,
		"expectedVersion": int64(0),
		"title":           "Renamed",
	})
	state := out.(aggregate.CollectionState)
	if state.Title != "Renamed" {
		t.Fatalf("title = %q, want Renamed", state.Title)
	}
}

func createTestVariant(t *testing.T, d *Dispatcher) aggregate.VariantState {
	t.Helper()
	out := mustDispatch(t, d, "createVariant", map[string]any{
		"productId": uuid.NewString(),
		"kind":      aggregate.KindDropship,
		"sku":       "SKU-1",
		"title":     "Basic Tee",
		"listPrice": int64(1000),
	})
	return out.(aggregate.VariantState)
}

func TestScheduleVariantSale_ProjectsStartEndPair(t *testing.T) {
	_, d, _, db := newServiceEnv(t)
	v := createTestVariant(t, d)

	mustDispatch(t, d, "scheduleVariantSale", map[string]any{
		"id":       v.ID.String(),
		"kind":     aggregate.SaleKindPercent,
		"percent":  0.25,
		"startsAt": time.Now().UTC().Add(time.Hour),
		"endsAt":   time.Now().UTC().Add(2 * time.Hour),
	})

	var rows []entity.PendingScheduleRecord
	if err := db.Conn.Where("target_aggregate_id = ?", v.ID).Order("due_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load pending rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(rows))
	}
	if rows[0].CommandType != "startVariantSale" || rows[1].CommandType != "endVariantSale" {
		t.Fatalf("row command types = %q, %q", rows[0].CommandType, rows[1].CommandType)
	}
	if rows[0].ScheduleGroupID != rows[1].ScheduleGroupID {
		t.Fatal("start and end rows do not share a schedule group")
	}

	mustDispatch(t, d, "cancelVariantSale", map[string]any{"id": v.ID.String()})

	var count int64
	if err := db.Conn.Model(&entity.PendingScheduleRecord{}).Where("target_aggregate_id = ?", v.ID).Count(&count).Error; err != nil {
		t.Fatalf("count pending rows: %v", err)
	}
	if count != 0 {
		t.Fatalf("pending rows after cancel = %d, want 0", count)
	}
}

func TestSaleWindowActivatesThroughPoller(t *testing.T) {
	_, d, uow, db := newServiceEnv(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	v := createTestVariant(t, d)

	mustDispatch(t, d, "scheduleVariantSale", map[string]any{
		"id":       v.ID.String(),
		"kind":     aggregate.SaleKindPercent,
		"percent":  0.25,
		"startsAt": time.Now().UTC().Add(-time.Minute),
		"endsAt":   time.Now().UTC().Add(time.Hour),
	})

	p := scheduler.NewPoller(log, scheduler.Config{}, scheduler.NewPendingScheduleSource(uow, log, 5))
	BindScheduler(p, d)
	p.Tick(context.Background())

	var snap entity.SnapshotRecord
	if err := db.Conn.First(&snap, "aggregate_id = ?", v.ID).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	var state aggregate.VariantState
	if err := json.Unmarshal(snap.Payload, &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.Sale == nil || state.Sale.Status != aggregate.ScheduleStatusActive {
		t.Fatalf("sale = %+v, want active", state.Sale)
	}
	if state.SalePrice == nil || *state.SalePrice != 750 {
		t.Fatalf("sale price = %v, want 750", state.SalePrice)
	}

	var rows []entity.PendingScheduleRecord
	if err := db.Conn.Where("target_aggregate_id = ?", v.ID).Order("due_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load pending rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("pending rows = %d, want 2", len(rows))
	}
	if rows[0].Status != aggregate.ScheduleExecuted {
		t.Fatalf("start row status = %q, want executed", rows[0].Status)
	}
	if rows[1].Status != aggregate.SchedulePending {
		t.Fatalf("end row status = %q, want pending", rows[1].Status)
	}
}

func TestScheduledDropActivatesThroughPoller(t *testing.T) {
	_, d, uow, db := newServiceEnv(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	v := createTestVariant(t, d)

	mustDispatch(t, d, "scheduleVariantDrop", map[string]any{
		"id":         v.ID.String(),
		"dropAt":     time.Now().UTC().Add(-time.Minute),
		"visibility": aggregate.DropHidden,
	})

	p := scheduler.NewPoller(log, scheduler.Config{}, scheduler.NewPendingScheduleSource(uow, log, 5))
	BindScheduler(p, d)
	p.Tick(context.Background())

	var snap entity.SnapshotRecord
	if err := db.Conn.First(&snap, "aggregate_id = ?", v.ID).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	var state aggregate.VariantState
	if err := json.Unmarshal(snap.Payload, &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.Status != aggregate.StatusActive {
		t.Fatalf("variant status = %q, want active", state.Status)
	}
	if state.Drop == nil || state.Drop.Status != aggregate.ScheduleStatusExecuted {
		t.Fatalf("drop = %+v, want executed", state.Drop)
	}
}

func TestCreateSchedule_RunsCommandThroughPoller(t *testing.T) {
	_, d, uow, db := newServiceEnv(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	v := createTestVariant(t, d)

	out := mustDispatch(t, d, "createSchedule", map[string]any{
		"targetId":     v.ID.String(),
		"targetType":   aggregate.TypeVariant,
		"commandType":  "publishVariant",
		"scheduledFor": time.Now().UTC().Add(-time.Minute),
	})
	sched := out.(aggregate.ScheduleState)

	p := scheduler.NewPoller(log, scheduler.Config{}, scheduler.NewScheduleSource(uow, log, 5))
	BindScheduler(p, d)
	p.Tick(context.Background())

	row, err := persistence.NewScheduleReader(db).Get(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("load schedule row: %v", err)
	}
	if row.Status != aggregate.ScheduleExecuted {
		t.Fatalf("schedule status = %q, want executed", row.Status)
	}

	var snap entity.SnapshotRecord
	if err := db.Conn.First(&snap, "aggregate_id = ?", v.ID).Error; err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	var state aggregate.VariantState
	if err := json.Unmarshal(snap.Payload, &state); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if state.Status != aggregate.StatusActive {
		t.Fatalf("variant status = %q, want active", state.Status)
	}
}

func TestCancelSchedule_TerminalStatesReject(t *testing.T) {
	_, d, _, _ := newServiceEnv(t)
	v := createTestVariant(t, d)

	out := mustDispatch(t, d, "createSchedule", map[string]any{
		"targetId":     v.ID.String(),
		"targetType":   aggregate.TypeVariant,
		"commandType":  "publishVariant",
		"scheduledFor": time.Now().UTC().Add(time.Hour),
	})
	sched := out.(aggregate.ScheduleState)

	out = mustDispatch(t, d, "cancelSchedule", map[string]any{"id": sched.ID.String()})
	if got := out.(aggregate.ScheduleState).Status; got != aggregate.ScheduleCancelled {
		t.Fatalf("status = %q, want cancelled", got)
	}

	_, err := dispatch(t, d, "cancelSchedule", map[string]any{"id": sched.ID.String()})
	var verr *aggregate.ValidationError
	if !errors.As(err, &verr) || verr.Code != aggregate.CodeInvalidStatus {
		t.Fatalf("second cancel err = %v, want invalid_status validation error", err)
	}
}
