package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"registrar/internal/event/models"
	"registrar/internal/platform/metrics"
	"registrar/internal/platform/middleware"
	dErrors "registrar/pkg/domain-errors"
	"registrar/pkg/platform/httputil"
	pstrings "registrar/pkg/platform/strings"
	"registrar/pkg/requestcontext"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxBodyBytes         = 1 << 20
)

// Service defines the event operations exposed over HTTP.
type Service interface {
	CreateEvent(ctx context.Context, eventType string) (*models.EventView, error)
	GetEvent(ctx context.Context, id string) (*models.EventView, error)
	ListActions(ctx context.Context, id string) ([]models.Action, error)
	RequestAction(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error)
	GetCorrectionPreview(ctx context.Context, eventID, requestActionID string) (*models.CorrectionPreview, error)
	Search(ctx context.Context, q models.SearchQuery) ([]models.IndexedEvent, error)
}

// Handler serves the event endpoints.
type Handler struct {
	logger       *slog.Logger
	events       Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new event Handler.
func New(
	events Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		events:       events,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the event routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	eventRouter := chi.NewRouter()
	eventRouter.Use(middleware.Recovery(h.logger, h.metrics))
	eventRouter.Use(middleware.RequestID)
	eventRouter.Use(middleware.RequestTime)
	eventRouter.Use(middleware.Logger(h.logger, h.metrics))
	eventRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	eventRouter.Post("/", h.handleCreateEvent)
	eventRouter.Get("/", h.handleSearch)
	eventRouter.Get("/{eventID}", h.handleGetEvent)
	eventRouter.Get("/{eventID}/actions", h.handleListActions)
	eventRouter.Post("/{eventID}/actions/{actionType}", h.handleRequestAction)
	eventRouter.Get("/{eventID}/corrections/{actionID}", h.handleCorrectionPreview)

	r.Mount("/events", eventRouter)
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.CreateEventRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create event request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	view, err := h.events.CreateEvent(ctx, req.Type)
	if err != nil {
		h.writeError(ctx, w, err, "failed to create event")
		return
	}
	w.Header().Set("Location", "/events/"+view.ID)
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.events.GetEvent(ctx, chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to get event")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actions, err := h.events.ListActions(ctx, chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to list actions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, actions)
}

// handleRequestAction appends one action. A pending confirmation answers 202
// so clients know to retry with the same Idempotency-Key.
func (h *Handler) handleRequestAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.ActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid action request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.EventID = chi.URLParam(r, "eventID")
	req.Type = models.ActionType(chi.URLParam(r, "actionType"))
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	result, err := h.events.RequestAction(ctx, req)
	if err != nil {
		h.writeError(ctx, w, err, "failed to request action")
		return
	}
	status := http.StatusOK
	if result.Outcome == models.OutcomePending {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleCorrectionPreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	preview, err := h.events.GetCorrectionPreview(ctx, chi.URLParam(r, "eventID"), chi.URLParam(r, "actionID"))
	if err != nil {
		h.writeError(ctx, w, err, "failed to build correction preview")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, preview)
}

// handleSearch filters the read model by ?type=, ?status= and repeated ?flag=.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values := r.URL.Query()
	q := models.SearchQuery{
		Type:   values.Get("type"),
		Status: models.EventStatus(strings.ToUpper(values.Get("status"))),
	}
	for _, raw := range pstrings.DedupeAndTrim(values["flag"]) {
		flag, ok := models.ParseFlag(raw)
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown flag: "+raw))
			return
		}
		q.Flags = append(q.Flags, flag)
	}

	results, err := h.events.Search(ctx, q)
	if err != nil {
		h.writeError(ctx, w, err, "search failed")
		return
	}
	if results == nil {
		results = []models.IndexedEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

// writeError logs server-side failures and hands the coded error to the client.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUnavailable, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// decodeBody decodes a JSON body. An empty body leaves v at its zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
