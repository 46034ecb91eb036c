package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailomat/internal/subscription/models"
	"mailomat/internal/subscription/service"
	dErrors "mailomat/pkg/domain-errors"
	"mailomat/pkg/platform/httputil"
	"mailomat/pkg/requestcontext"
)

// Service is the subscription workflow as seen by HTTP.
type Service interface {
	Subscribe(ctx context.Context, raw models.RawSubscriber) (*service.SubscribeResult, error)
	Confirm(ctx context.Context, token string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

// Register mounts the public subscription routes. /api/subscribe is kept as an
// alias of POST /subscriptions.
func (h *Handler) Register(r chi.Router) {
	r.Post("/subscriptions", h.handleSubscribe)
	r.Post("/api/subscribe", h.handleSubscribe)
	r.Get("/subscriptions/confirm", h.handleConfirm)
}

// SubscribeRequest uses pointers so a missing or null field is told apart from an empty one.
type SubscribeRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (r *SubscribeRequest) Validate() error {
	if r.Name == nil || r.Email == nil {
		return dErrors.New(dErrors.CodeUnprocessable, "name and email are required")
	}
	return nil
}

// StatusResponse is the body of a successful subscribe or confirm call. It is the
// same for new, pending and confirmed addresses.
type StatusResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubscribeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if _, err := h.service.Subscribe(ctx, models.RawSubscriber{Name: req.Name, Email: req.Email}); err != nil {
		h.logError(ctx, "subscribe failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "accepted"})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.Confirm(ctx, r.URL.Query().Get("token")); err != nil {
		h.logError(ctx, "confirmation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "confirmed"})
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	)
}
