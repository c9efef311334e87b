package dnsrecord

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/internal/authctx"
	"github.com/afterdarksys/mockfactory/internal/httpserver"
)

// Handler provides HTTP handlers for an environment's DNS records, mounted
// under /environments/{environmentID}/dns-records (spec §4.7, nested under
// environment per §5).
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a dnsrecord Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns a chi.Router with all DNS record routes mounted, expecting
// an "environmentID" URL param supplied by the parent router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Post("/bulk", h.handleBulkCreate)
	r.Get("/", h.handleList)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	environmentID := chi.URLParam(r, "environmentID")
	resp, err := h.svc.Create(r.Context(), identity.UserID, environmentID, req)
	if err != nil {
		h.respondErr(w, err, "creating dns record")
		return
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req BulkCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	environmentID := chi.URLParam(r, "environmentID")
	results, err := h.svc.BulkCreate(r.Context(), identity.UserID, environmentID, req)
	if err != nil {
		h.respondErr(w, err, "bulk creating dns records")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	environmentID := chi.URLParam(r, "environmentID")
	items, err := h.svc.List(r.Context(), identity.UserID, environmentID)
	if err != nil {
		h.respondErr(w, err, "listing dns records")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"records": items, "count": len(items)})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	environmentID := chi.URLParam(r, "environmentID")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid dns record id")
		return
	}

	if err := h.svc.Delete(r.Context(), identity.UserID, environmentID, id); err != nil {
		h.respondErr(w, err, "deleting dns record")
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error, action string) {
	if apperr.KindOf(err) == apperr.InternalError {
		var appErr *apperr.Error
		if !errors.As(err, &appErr) {
			h.logger.Error(action, "error", err)
		}
	}
	httpserver.RespondErr(w, err)
}
