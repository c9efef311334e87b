package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afterdarksys/mockfactory/internal/activitylog"
	"github.com/afterdarksys/mockfactory/internal/httpserver"
)

// Handler provides HTTP handlers for the users API.
type Handler struct {
	svc      *Service
	logger   *slog.Logger
	activity *activitylog.Writer
}

// NewHandler creates a user Handler.
func NewHandler(pool *pgxpool.Pool, logger *slog.Logger, activity *activitylog.Writer) *Handler {
	return &Handler{
		svc:      NewService(pool, logger),
		logger:   logger,
		activity: activity,
	}
}

// Service returns the underlying Service, used to wire internal/authctx.
func (h *Handler) Service() *Service {
	return h.svc
}

// Routes returns a chi.Router with all user routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Patch("/tier", h.handleSetTier)
		r.Delete("/", h.handleDeactivate)
	})
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.svc.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("creating user", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid user ID")
		return
	}

	resp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("getting user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

// setTierRequest is the JSON body for PATCH /users/{id}/tier, a billing/admin
// mutation (spec §3) rather than a user-initiated self-service operation.
type setTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free pro team"`
}

func (h *Handler) handleSetTier(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid user ID")
		return
	}

	var req setTierRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.svc.SetTier(r.Context(), id, req.Tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("setting user tier", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to set tier")
		return
	}

	if h.activity != nil {
		detail, _ := json.Marshal(map[string]string{"tier": req.Tier})
		h.activity.Log(id, "user.tier_changed", detail)
	}

	resp, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get user")
		return
	}

	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", "invalid user ID")
		return
	}

	if err := h.svc.Deactivate(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.logger.Error("deactivating user", "error", err, "id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to deactivate user")
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
