package lead

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadledger/leadledger/internal/platform/httpx"
)

// Handler manages lead endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers lead routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listLeads)
	r.Post("/", h.createLead)
	r.Get("/today", h.listTodaysLeads)
	r.Get("/{id}", h.getLead)
	r.Post("/{id}/mark-paid", h.markPaid)
	r.Post("/{id}/mark-paid-by-credit", h.markPaidByCredit)
	r.Put("/{id}/product", h.assignProduct)
}

type createLeadForm struct {
	ClientID       int64  `json:"client_id" validate:"required"`
	ProductID      *int64 `json:"product_id"`
	Name           string `json:"lead_name" validate:"required"`
	Phone          string `json:"lead_phone"`
	Address        string `json:"lead_address"`
	AdditionalInfo string `json:"additional_info"`
}

func (h *Handler) createLead(w http.ResponseWriter, r *http.Request) {
	var form createLeadForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	l, err := h.service.CreateLead(r.Context(), CreateLeadInput{
		ClientID:       form.ClientID,
		ProductID:      form.ProductID,
		Name:           form.Name,
		Phone:          form.Phone,
		Address:        form.Address,
		AdditionalInfo: form.AdditionalInfo,
	})
	if err != nil {
		h.respondError(w, "create lead", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, l)
}

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	leads, err := h.service.ListLeads(r.Context(), filter)
	if err != nil {
		h.logger.Error("list leads", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (h *Handler) listTodaysLeads(w http.ResponseWriter, r *http.Request) {
	status := PaymentStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown payment status")
		return
	}
	leads, err := h.service.ListTodaysLeads(r.Context(), status)
	if err != nil {
		h.logger.Error("list todays leads", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	d, err := h.service.GetLeadDetail(r.Context(), id)
	if err != nil {
		h.respondError(w, "get lead", err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	l, err := h.service.MarkPaid(r.Context(), id)
	if err != nil {
		h.respondError(w, "mark paid", err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) markPaidByCredit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	l, err := h.service.MarkPaidByCredit(r.Context(), id)
	if err != nil {
		h.respondError(w, "mark paid by credit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

type assignProductForm struct {
	ProductID *int64 `json:"product_id"`
}

func (h *Handler) assignProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.leadID(w, r)
	if !ok {
		return
	}
	var form assignProductForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	l, err := h.service.AssignProduct(r.Context(), id, form.ProductID)
	if err != nil {
		h.respondError(w, "assign product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) leadID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid lead id")
		return 0, false
	}
	return id, true
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	var filter ListFilter
	q := r.URL.Query()
	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid client_id")
			return filter, false
		}
		filter.ClientID = id
	}
	if v := q.Get("status"); v != "" {
		status := PaymentStatus(v)
		if !status.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown payment status")
			return filter, false
		}
		filter.Status = status
	}
	for _, bound := range []struct {
		param string
		dest  *time.Time
		end   bool
	}{{"from", &filter.From, false}, {"to", &filter.To, true}} {
		if v := q.Get(bound.param); v != "" {
			day, err := time.Parse("2006-01-02", v)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+bound.param+" date")
				return filter, false
			}
			if bound.end {
				day = day.AddDate(0, 0, 1)
			}
			*bound.dest = day
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return filter, false
		}
		filter.Limit = limit
	}
	return filter, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrClientRequired), errors.Is(err, ErrNameRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyCredited), errors.Is(err, ErrAlreadyReported),
		errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotEditable):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
