// handlers/queue_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/internal/hub"
	"queue-system/internal/services"
	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/security"
)

// pingInterval keeps idle SSE connections alive through proxies.
const pingInterval = 25 * time.Second

type QueueHandler struct {
	app       *pocketbase.PocketBase
	allocator *services.Allocator
	engine    *services.Engine
	stats     *services.Stats
	hub       *hub.Hub
	limiter   *security.RateLimiter
	boards    *security.BoardKeyChecker
	buffer    int
}

func NewQueueHandler(
	app *pocketbase.PocketBase,
	allocator *services.Allocator,
	engine *services.Engine,
	stats *services.Stats,
	h *hub.Hub,
	limiter *security.RateLimiter,
	boards *security.BoardKeyChecker,
	subscriberBuffer int,
) *QueueHandler {
	return &QueueHandler{
		app:       app,
		allocator: allocator,
		engine:    engine,
		stats:     stats,
		hub:       h,
		limiter:   limiter,
		boards:    boards,
		buffer:    subscriberBuffer,
	}
}

type scopeRequest struct {
	TenantID string `json:"tenant_id"`
	ServerID string `json:"server_id"`
}

func (r scopeRequest) scope() (models.ServiceScope, error) {
	return models.NewServiceScope(r.TenantID, r.ServerID)
}

type serveRequest struct {
	scopeRequest
	TicketNumber int `json:"ticket_number"`
}

func (r serveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TicketNumber, validation.Required, validation.Min(1)),
	)
}

type breakRequest struct {
	scopeRequest
	EntityID string     `json:"entity_id"`
	Until    *time.Time `json:"until"`
}

type cancelRequest struct {
	scopeRequest
	TicketNumber int `json:"ticket_number"`
}

func (r cancelRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TicketNumber, validation.Required, validation.Min(1)),
	)
}

// CreateTicket - allocate the next ticket number for a scope
func (h *QueueHandler) CreateTicket(e *core.RequestEvent) error {
	ctx := e.Request.Context()

	if err := h.limiter.Allow(ctx, e.RealIP()); err != nil {
		slog.Info("ticket request rate limited", "ip", e.RealIP())
		return apiError(err)
	}

	var req scopeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	scope, err := req.scope()
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	ticket, err := h.allocator.Allocate(ctx, scope)
	if err != nil {
		slog.Error("ticket allocation failed", "scope", scope.ID(), "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, ticket)
}

// Serve - record that the desk called a ticket number
func (h *QueueHandler) Serve(e *core.RequestEvent) error {
	var req serveRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := req.Validate(); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	scope, err := req.scope()
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	snap, err := h.engine.OnServe(e.Request.Context(), scope, req.TicketNumber)
	if err != nil {
		slog.Error("serve event failed", "scope", scope.ID(), "ticket", req.TicketNumber, "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, snap)
}

// StartBreak - open a break window for a scope. Omitting until makes the
// break hold until an explicit end.
func (h *QueueHandler) StartBreak(e *core.RequestEvent) error {
	var req breakRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	scope, err := req.scope()
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	if req.Until != nil && !req.Until.After(time.Now()) {
		return apis.NewBadRequestError("Break end must be in the future", nil)
	}

	snap, err := h.engine.StartBreak(e.Request.Context(), scope, req.EntityID, req.Until)
	if err != nil {
		slog.Error("start break failed", "scope", scope.ID(), "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, snap)
}

// EndBreak - close a scope's break window
func (h *QueueHandler) EndBreak(e *core.RequestEvent) error {
	var req scopeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	scope, err := req.scope()
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	snap, err := h.engine.EndBreak(e.Request.Context(), scope)
	if err != nil {
		slog.Error("end break failed", "scope", scope.ID(), "error", err)
		return apiError(err)
	}

	return e.JSON(http.StatusOK, snap)
}

// CancelTicket - withdraw a waiting ticket
func (h *QueueHandler) CancelTicket(e *core.RequestEvent) error {
	var req cancelRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if err := req.Validate(); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	scope, err := req.scope()
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	if err := h.allocator.Cancel(e.Request.Context(), scope, req.TicketNumber); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Ticket cancelled", "ticket_number": req.TicketNumber})
}

// Snapshot - one-shot public state of a scope
func (h *QueueHandler) Snapshot(e *core.RequestEvent) error {
	q := e.Request.URL.Query()

	scope, err := scopeFromQuery(q)
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}
	viewer, err := viewerFromQuery(q)
	if err != nil {
		return apis.NewBadRequestError("Invalid ticket number", err)
	}

	snap, err := h.engine.Snapshot(e.Request.Context(), scope)
	if err != nil {
		return apiError(err)
	}
	if viewer != nil {
		snap = snap.WithViewer(*viewer,
			services.EstimateWaitSeconds(*viewer, snap.NowServingToken, snap.AvgServiceSeconds))
	}

	return e.JSON(http.StatusOK, snap)
}

// Subscribe - live snapshot stream over SSE
func (h *QueueHandler) Subscribe(e *core.RequestEvent) error {
	q := e.Request.URL.Query()

	scope, err := scopeFromQuery(q)
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}
	viewer, err := viewerFromQuery(q)
	if err != nil {
		return apis.NewBadRequestError("Invalid ticket number", err)
	}

	// Ticketless subscribers are display boards; those need a key when
	// board access is restricted.
	if viewer == nil && h.boards.Enabled() {
		if err := h.boards.Check(e.Request.Header.Get("X-Board-Key")); err != nil {
			slog.Info("board rejected", "scope", scope.ID(), "ip", e.RealIP())
			return apiError(err)
		}
	}

	ctx := e.Request.Context()
	sink := hub.NewChannelSink(scope.ID(), h.buffer)
	subID, err := h.hub.Subscribe(ctx, scope, viewer, sink)
	if err != nil {
		return apiError(err)
	}
	defer h.hub.Unsubscribe(scope, subID)

	w := e.Response
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil
	}

	slog.Info("subscriber connected", "scope", scope.ID(), "subscriber", subID, "board", viewer == nil)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sink.Done():
			return nil
		case snap := <-sink.Snapshots():
			if err := writeSSE(w, snap); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}

// Stats - per-day totals for a scope
func (h *QueueHandler) Stats(e *core.RequestEvent) error {
	scope, err := scopeFromQuery(e.Request.URL.Query())
	if err != nil {
		return apis.NewBadRequestError("Invalid service scope", err)
	}

	daily, err := h.stats.Daily(e.Request.Context(), scope)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, daily)
}

// Dashboard - every scope active today, for the operator overview
func (h *QueueHandler) Dashboard(e *core.RequestEvent) error {
	snaps, err := h.stats.Dashboard(e.Request.Context())
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"scopes": snaps, "count": len(snaps)})
}

func scopeFromQuery(q url.Values) (models.ServiceScope, error) {
	return models.NewServiceScope(q.Get("tenant_id"), q.Get("server_id"))
}

func viewerFromQuery(q url.Values) (*int, error) {
	raw := q.Get("ticket")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("ticket number must be positive, got %d", n)
	}
	return &n, nil
}

func writeSSE(w io.Writer, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// apiError maps service errors onto HTTP responses.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrScopeInvalid):
		return apis.NewBadRequestError("Invalid service scope", err)
	case errors.Is(err, status.ErrRateLimited):
		return apis.NewApiError(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
	case errors.Is(err, status.ErrAllocationFailed):
		return apis.NewApiError(http.StatusServiceUnavailable, "Queue is busy, please retry.", nil)
	case errors.Is(err, status.ErrTicketNotFound):
		return apis.NewNotFoundError("Ticket not found", err)
	case errors.Is(err, status.ErrTicketNotCancellable):
		return apis.NewBadRequestError("Ticket can no longer be cancelled", err)
	case errors.Is(err, status.ErrBoardKeyInvalid):
		return apis.NewForbiddenError("Invalid board key", err)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", err)
	}
}
