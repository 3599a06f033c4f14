package client

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadledger/leadledger/internal/platform/httpx"
)

// Handler manages client endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listClients)
	r.Post("/", h.createClient)
	r.Get("/active", h.listActiveClients)
	r.Get("/find", h.findClient)
	r.Get("/search", h.searchClients)
	r.Get("/with-leads-today", h.listClientsWithLeadsToday)
	r.Get("/{id}", h.getClient)
	r.Put("/{id}", h.updateClient)
}

type clientForm struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone"`
	Status string `json:"status" validate:"omitempty,oneof=active paused suspended"`
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context())
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *Handler) listActiveClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListActiveClients(r.Context())
	if err != nil {
		h.logger.Error("list active clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *Handler) searchClients(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("name")
	if term == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "query parameter 'name' is required")
		return
	}
	clients, err := h.service.SearchClientsByName(r.Context(), term)
	if err != nil {
		h.logger.Error("search clients", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *Handler) findClient(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("name")
	if term == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "query parameter 'name' is required")
		return
	}
	id, err := h.service.FindClientByName(r.Context(), term)
	if err != nil {
		h.respondError(w, "find client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"client_id": id})
}

func (h *Handler) listClientsWithLeadsToday(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClientsWithLeadsToday(r.Context())
	if err != nil {
		h.logger.Error("list clients with leads today", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid client id")
		return
	}
	cl, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.respondError(w, "get client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cl)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var form clientForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cl, err := h.service.CreateClient(r.Context(), CreateClientInput{
		Name:  form.Name,
		Email: form.Email,
		Phone: form.Phone,
	})
	if err != nil {
		h.respondError(w, "create client", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cl)
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid client id")
		return
	}
	var form clientForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	status := Status(form.Status)
	if form.Status == "" {
		status = StatusActive
	}
	cl, err := h.service.UpdateClient(r.Context(), id, UpdateClientInput{
		Name:   form.Name,
		Email:  form.Email,
		Phone:  form.Phone,
		Status: status,
	})
	if err != nil {
		h.respondError(w, "update client", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cl)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
