package environment

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/afterdarksys/mockfactory/internal/apperr"
	"github.com/afterdarksys/mockfactory/internal/authctx"
	"github.com/afterdarksys/mockfactory/internal/httpserver"
)

// Handler provides HTTP handlers for the environments API.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates an environment Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns a chi.Router with all environment routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/stop", h.handleStop)
		r.Post("/start", h.handleStart)
		r.Delete("/", h.handleDestroy)
		r.Patch("/hostname", h.handleSetHostname)
	})
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

	resp, err := h.svc.Create(r.Context(), identity.UserID, req)
	if err != nil {
		h.respondErr(w, err, "creating environment")
		return
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	state := State(r.URL.Query().Get("state"))
	items, err := h.svc.List(r.Context(), identity.UserID, state)
	if err != nil {
		h.respondErr(w, err, "listing environments")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"environments": items,
		"count":        len(items),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	resp, err := h.svc.Get(r.Context(), identity.UserID, id)
	if err != nil {
		h.respondErr(w, err, "getting environment")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	resp, err := h.svc.Stop(r.Context(), identity.UserID, id)
	if err != nil {
		h.respondErr(w, err, "stopping environment")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	resp, err := h.svc.Start(r.Context(), identity.UserID, id)
	if err != nil {
		h.respondErr(w, err, "starting environment")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleDestroy(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.Destroy(r.Context(), identity.UserID, id); err != nil {
		h.respondErr(w, err, "destroying environment")
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleSetHostname(w http.ResponseWriter, r *http.Request) {
	identity := authctx.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req SetHostnameRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	resp, err := h.svc.SetHostname(r.Context(), identity.UserID, id, req.Hostname)
	if err != nil {
		h.respondErr(w, err, "setting hostname")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
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
