package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/transport/http/middleware"
	"github.com/slapcommerce/backoffice/internal/usecase"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		NextCursor string `json:"next_cursor"`
	} `json:"meta"`
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	svc := usecase.NewService(uow, log)
	handler := NewHandler(log, svc.Dispatcher(), uow, db,
		persistence.NewScheduleReader(db), persistence.NewIdempotencyReader(db))

	engine := gin.New()
	engine.Use(middleware.RequestID())
	NewRouter(handler).RegisterRoutes(engine, middleware.IdempotencyRequired(true))
	return engine
}

func postCommand(t *testing.T, engine *gin.Engine, idemKey string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "tester")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	} else {
		req.Header.Set("X-Test-Bypass-Idempotency", "true")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func getPath(t *testing.T, engine *gin.Engine, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestCommands_CreateCollection(t *testing.T) {
	engine := newTestServer(t)

	rec, env := postCommand(t, engine, "", map[string]any{
		"commandType": "createCollection",
		"payload":     map[string]any{"slug": "summer", "title": "Summer"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !env.Success {
		t.Fatalf("success = false, body = %s", rec.Body.String())
	}
	var data struct {
		Slug   string `json:"slug"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Slug != "summer" || data.Status != "draft" {
		t.Fatalf("data = %+v", data)
	}
}

func TestCommands_IdempotentReplay(t *testing.T) {
	engine := newTestServer(t)
	key := uuid.NewString()
	body := map[string]any{
		"commandType": "createCollection",
		"payload":     map[string]any{"slug": "replayed", "title": "Replayed"},
	}

	rec, env := postCommand(t, engine, key, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	// Same key, same body: replayed without re-executing. A second
	// execution would trip the slug uniqueness check.
	rec, env = postCommand(t, engine, key, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var replayed struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &replayed); err != nil {
		t.Fatalf("decode replay data: %v", err)
	}
	if replayed.ID != created.ID {
		t.Fatalf("replay id = %s, want %s", replayed.ID, created.ID)
	}

	// Same key, different body: conflict.
	rec, env = postCommand(t, engine, key, map[string]any{
		"commandType": "createCollection",
		"payload":     map[string]any{"slug": "other", "title": "Other"},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("mismatched body status = %d, want 409", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "idempotency_conflict" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestCommands_MissingIdempotencyKey(t *testing.T) {
	engine := newTestServer(t)
	raw, _ := json.Marshal(map[string]any{
		"commandType": "createCollection",
		"payload":     map[string]any{"slug": "x", "title": "X"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/commands", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if env.Error == nil || env.Error.Code != "missing_idempotency_key" {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestCommands_ErrorMapping(t *testing.T) {
	engine := newTestServer(t)

	rec, env := postCommand(t, engine, "", map[string]any{
		"commandType": "createCollection",
		"payload":     map[string]any{"title": "No slug"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validation status = %d, want 422", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "missing_field" {
		t.Fatalf("validation error = %+v", env.Error)
	}

	rec, env = postCommand(t, engine, "", map[string]any{
		"commandType": "launchRocket",
		"payload":     map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown command status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "unknown_command" {
		t.Fatalf("unknown command error = %+v", env.Error)
	}

	rec, env = postCommand(t, engine, "", map[string]any{
		"commandType": "publishCollection",
		"payload":     map[string]any{"id": uuid.NewString()},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing aggregate status = %d, want 404", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "not_found" {
		t.Fatalf("missing aggregate error = %+v", env.Error)
	}

	rec, env = postCommand(t, engine, "", map[string]any{
		"payload": map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing commandType status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "bad_request" {
		t.Fatalf("missing commandType error = %+v", env.Error)
	}
}

func TestSchedules_ListAndGet(t *testing.T) {
	engine := newTestServer(t)

	rec, env := postCommand(t, engine, "", map[string]any{
		"commandType": "createSchedule",
		"payload": map[string]any{
			"targetId":     uuid.NewString(),
			"targetType":   "variant",
			"commandType":  "publishVariant",
			"scheduledFor": time.Now().UTC().Add(time.Hour),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create schedule status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode data: %v", err)
	}

	rec, env = getPath(t, engine, "/v1/schedules")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []entity.ScheduleRecord
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 || rows[0].AggregateID != created.ID {
		t.Fatalf("rows = %+v", rows)
	}

	rec, env = getPath(t, engine, "/v1/schedules/"+created.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var row entity.ScheduleRecord
	if err := json.Unmarshal(env.Data, &row); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	if row.Status != "pending" {
		t.Fatalf("status = %q, want pending", row.Status)
	}

	rec, _ = getPath(t, engine, "/v1/schedules/not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rec.Code)
	}

	rec, _ = getPath(t, engine, "/v1/schedules/"+uuid.NewString())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", rec.Code)
	}

	rec, _ = getPath(t, engine, "/v1/schedules?limit=500")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized limit status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	engine := newTestServer(t)
	rec, env := getPath(t, engine, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !env.Success {
		t.Fatalf("success = false, body = %s", rec.Body.String())
	}
}
