package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/platform/httpx"
)

// Handler manages credit ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the ledger listing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCredits)
	r.Get("/recent", h.listRecentCredits)
}

// MountClientRoutes registers per-client credit routes.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.Get("/{id}/credits", h.listClientCredits)
	r.Post("/{id}/credits/adjust", h.adjustClientCredits)
}

// MountLeadRoutes registers per-lead credit routes.
func (h *Handler) MountLeadRoutes(r chi.Router) {
	r.Get("/{id}/credits", h.listLeadCredits)
	r.Post("/{id}/credit", h.issueCreditToLead)
}

type adjustCreditsForm struct {
	Amount int64  `json:"credit_amount" validate:"required"`
	Type   string `json:"adjustment_type" validate:"required,oneof=add remove"`
	Reason string `json:"reason"`
	Notes  string `json:"additional_notes"`
	Actor  string `json:"adjusted_by"`
}

func (h *Handler) adjustClientCredits(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.pathID(w, r, "invalid client id")
	if !ok {
		return
	}
	var form adjustCreditsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.AdjustClientCredits(r.Context(), AdjustCreditsInput{
		ClientID:  clientID,
		Amount:    form.Amount,
		Direction: Direction(form.Type),
		Reason:    Reason(form.Reason),
		Notes:     form.Notes,
		Actor:     form.Actor,
	})
	if err != nil {
		h.respondError(w, "adjust client credits", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

type issueCreditForm struct {
	Amount int64  `json:"credit_amount" validate:"required"`
	Reason string `json:"reason"`
	Notes  string `json:"additional_notes"`
	Actor  string `json:"adjusted_by"`
}

func (h *Handler) issueCreditToLead(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.pathID(w, r, "invalid lead id")
	if !ok {
		return
	}
	var form issueCreditForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.IssueCreditToLead(r.Context(), IssueCreditInput{
		LeadID: leadID,
		Amount: form.Amount,
		Reason: Reason(form.Reason),
		Notes:  form.Notes,
		Actor:  form.Actor,
	})
	if err != nil {
		h.respondError(w, "issue credit to lead", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listCredits(w http.ResponseWriter, r *http.Request) {
	var filter EntryFilter
	if v := r.URL.Query().Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid client_id")
			return
		}
		filter.ClientID = id
	}
	page, ok := h.queryInt(w, r, "page")
	if !ok {
		return
	}
	perPage, ok := h.queryInt(w, r, "per_page")
	if !ok {
		return
	}
	credits, pagination, err := h.service.ListCreditsPage(r.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error("list credits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": credits, "pagination": pagination})
}

func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+name)
		return 0, false
	}
	return n, true
}

func (h *Handler) listRecentCredits(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
		limit = parsed
	}
	credits, err := h.service.ListRecentCredits(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent credits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) listClientCredits(w http.ResponseWriter, r *http.Request) {
	clientID, ok := h.pathID(w, r, "invalid client id")
	if !ok {
		return
	}
	h.respondList(w, r, EntryFilter{ClientID: clientID}, "list client credits")
}

func (h *Handler) listLeadCredits(w http.ResponseWriter, r *http.Request) {
	leadID, ok := h.pathID(w, r, "invalid lead id")
	if !ok {
		return
	}
	h.respondList(w, r, EntryFilter{LeadID: leadID}, "list lead credits")
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, filter EntryFilter, op string) {
	credits, err := h.service.ListCredits(r.Context(), filter)
	if err != nil {
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, detail string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrClientNotFound), errors.Is(err, ErrLeadNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidDirection),
		errors.Is(err, ErrInvalidReason), errors.Is(err, ErrLeadUnassigned):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, lead.ErrAlreadyCredited), errors.Is(err, lead.ErrAlreadyReported),
		errors.Is(err, lead.ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
