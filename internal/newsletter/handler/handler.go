package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mailomat/internal/newsletter/models"
	dErrors "mailomat/pkg/domain-errors"
	"mailomat/pkg/platform/httputil"
	"mailomat/pkg/requestcontext"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	basicChallenge       = `Basic realm="publish"`
)

type Service interface {
	Authenticate(ctx context.Context, header string) error
	Broadcast(ctx context.Context, header string, n models.Newsletter, idempotencyKey string) (*models.DispatchReport, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/newsletters", h.handlePublish)
}

// FailureResponse is the error envelope of a partial dispatch.
type FailureResponse struct {
	httputil.ErrorResponse
	Report *models.DispatchReport `json:"report"`
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	header := r.Header.Get("Authorization")

	var n models.Newsletter
	if err := httputil.DecodeJSON(r, &n); err != nil {
		// Credentials are checked before the body is judged.
		if authErr := h.service.Authenticate(ctx, header); authErr != nil {
			h.writeError(ctx, w, authErr, nil)
			return
		}
		h.writeError(ctx, w, err, nil)
		return
	}

	report, err := h.service.Broadcast(ctx, header, n, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		h.writeError(ctx, w, err, report)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, report *models.DispatchReport) {
	code := dErrors.CodeOf(err)
	level := slog.LevelWarn
	if code == dErrors.CodeInternal || code == dErrors.CodeDeliveryFailed {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "publish newsletter failed",
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"error", err,
	)

	if code == dErrors.CodeUnauthorized {
		w.Header().Set("WWW-Authenticate", basicChallenge)
	}
	var de *dErrors.Error
	if code == dErrors.CodeDeliveryFailed && report != nil && errors.As(err, &de) {
		httputil.WriteJSON(w, httputil.StatusFor(code), FailureResponse{
			ErrorResponse: httputil.ErrorResponse{Error: string(code), ErrorDescription: de.Message},
			Report:        report,
		})
		return
	}
	httputil.WriteError(w, err)
}
