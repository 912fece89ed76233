package handlers

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/slapcommerce/backoffice/internal/domain/aggregate"
	"github.com/slapcommerce/backoffice/internal/domain/entity"
	"github.com/slapcommerce/backoffice/internal/domain/repository"
	"github.com/slapcommerce/backoffice/internal/infra/persistence"
	"github.com/slapcommerce/backoffice/internal/transport/http/middleware"
	"github.com/slapcommerce/backoffice/internal/transport/http/response"
	"github.com/slapcommerce/backoffice/internal/usecase"
)

// Handler serves the command endpoint and the schedule read endpoints.
type Handler struct {
	log        *logrus.Logger
	dispatcher *usecase.Dispatcher
	uow        *persistence.UnitOfWork
	store      repository.Store
	schedules  *persistence.ScheduleStore
	idem       *persistence.IdempotencyStore
}

func NewHandler(
	log *logrus.Logger,
	dispatcher *usecase.Dispatcher,
	uow *persistence.UnitOfWork,
	store repository.Store,
	schedules *persistence.ScheduleStore,
	idem *persistence.IdempotencyStore,
) *Handler {
	return &Handler{
		log:        log,
		dispatcher: dispatcher,
		uow:        uow,
		store:      store,
		schedules:  schedules,
		idem:       idem,
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		response.RespondError(c, nethttp.StatusServiceUnavailable, "unhealthy", "database unreachable")
		return
	}
	response.RespondOK(c, nethttp.StatusOK, gin.H{"status": "ok"}, nil)
}

type commandRequest struct {
	CommandType string          `json:"commandType" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
}

// dispatch is the single write entry point: every mutation arrives as
// {commandType, payload}. The acting user comes from the auth seam
// (X-User-ID until real auth lands in the gateway).
func (h *Handler) dispatch(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, nethttp.StatusBadRequest, "bad_request", "commandType is required")
		return
	}

	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}
	correlationID := c.GetString(middleware.RequestIDKey)

	idemKey := c.GetString(middleware.IdempotencyKeyCtx)
	idemHash := c.GetString(middleware.IdempotencyHashCtx)
	if idemKey != "" {
		row, err := h.idem.Get(c.Request.Context(), idemKey)
		if err == nil {
			if row.RequestHash != idemHash {
				response.RespondError(c, nethttp.StatusConflict, "idempotency_conflict", repository.ErrIdempotencyKeyConflict.Error())
				return
			}
			response.RespondOK(c, nethttp.StatusOK, gin.H{"id": row.AggregateID}, nil)
			return
		}
		if !errors.Is(err, repository.ErrSnapshotNotFound) {
			h.respondFailure(c, err)
			return
		}
	}

	data, err := h.dispatcher.Dispatch(c.Request.Context(), usecase.Command{
		Type:          req.CommandType,
		Payload:       req.Payload,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		h.respondFailure(c, err)
		return
	}

	if idemKey != "" {
		if err := h.recordIdempotency(c.Request.Context(), idemKey, idemHash, userID, data); err != nil {
			h.log.WithError(err).WithField("idempotency_key", idemKey).Warn("recording idempotency key failed")
		}
	}
	response.RespondOK(c, nethttp.StatusOK, data, nil)
}

func (h *Handler) recordIdempotency(ctx context.Context, key, hash, userID string, data any) error {
	aggregateID := probeAggregateID(data)
	return h.uow.WithTransaction(ctx, func(ctx context.Context, st *persistence.Stores) error {
		st.Idempotency.Record(entity.IdempotencyKey{
			Key:         key,
			RequestHash: hash,
			UserID:      userID,
			AggregateID: aggregateID,
		})
		return nil
	})
}

// probeAggregateID pulls the id field out of whatever state the command
// returned.
func probeAggregateID(data any) uuid.UUID {
	raw, err := json.Marshal(data)
	if err != nil {
		return uuid.Nil
	}
	var probe struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return uuid.Nil
	}
	return probe.ID
}

func (h *Handler) listSchedules(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			response.RespondError(c, nethttp.StatusBadRequest, "bad_request", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}
	rows, next, err := h.schedules.ListCursor(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			response.RespondError(c, nethttp.StatusBadRequest, "bad_cursor", err.Error())
			return
		}
		h.respondFailure(c, err)
		return
	}
	var meta *response.Meta
	if next != "" {
		meta = &response.Meta{NextCursor: next}
	}
	response.RespondOK(c, nethttp.StatusOK, rows, meta)
}

func (h *Handler) getSchedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, nethttp.StatusBadRequest, "bad_request", "invalid schedule id")
		return
	}
	row, err := h.schedules.Get(c.Request.Context(), id)
	if err != nil {
		h.respondFailure(c, err)
		return
	}
	response.RespondOK(c, nethttp.StatusOK, row, nil)
}

// respondFailure maps the error taxonomy onto HTTP statuses: validation
// and payload problems are the caller's fault, conflicts are retryable
// with a fresh read, and a full batch queue is backpressure.
func (h *Handler) respondFailure(c *gin.Context, err error) {
	var verr *aggregate.ValidationError
	switch {
	case errors.As(err, &verr):
		response.RespondError(c, nethttp.StatusUnprocessableEntity, verr.Code, verr.Message)
	case errors.Is(err, usecase.ErrBadPayload):
		response.RespondError(c, nethttp.StatusBadRequest, "bad_payload", err.Error())
	case errors.Is(err, repository.ErrNoHandler):
		response.RespondError(c, nethttp.StatusBadRequest, "unknown_command", err.Error())
	case errors.Is(err, repository.ErrVersionConflict):
		response.RespondError(c, nethttp.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, repository.ErrSnapshotNotFound):
		response.RespondError(c, nethttp.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, repository.ErrQueueFull):
		response.RespondError(c, nethttp.StatusServiceUnavailable, "overloaded", err.Error())
	default:
		h.log.WithError(err).Error("command failed")
		response.RespondError(c, nethttp.StatusInternalServerError, "internal", "internal error")
	}
}
