package report

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leadledger/leadledger/internal/platform/httpx"
)

// Handler manages daily report and report settings endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listReports)
	r.Post("/generate", h.generateReport)
	r.Post("/reset-counters", h.resetCounters)
	r.Get("/settings", h.getSettings)
	r.Put("/settings", h.updateSettings)
	r.Get("/{id}", h.getReport)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid limit")
			return
		}
	}
	reports, err := h.service.ListReports(r.Context(), limit)
	if err != nil {
		h.logger.Error("list reports", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid report id")
		return
	}
	rep, err := h.service.GetReport(r.Context(), id)
	if err != nil {
		h.respondError(w, "get report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

type generateForm struct {
	ReportDate string `json:"report_date"`
}

func (h *Handler) generateReport(w http.ResponseWriter, r *http.Request) {
	var form generateForm
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &form); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
			return
		}
	}
	rep, err := h.service.GenerateDailyReport(r.Context(), form.ReportDate)
	if err != nil {
		h.respondError(w, "generate report", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rep)
}

func (h *Handler) resetCounters(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ResetDailyCounters(r.Context())
	if err != nil {
		h.logger.Error("reset counters", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clients_reset": n})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.logger.Error("get report settings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

type settingsForm struct {
	Timezone       *string  `json:"timezone"`
	ReportTime     *string  `json:"report_time"`
	SendOnWeekends *bool    `json:"send_reports_on_weekends"`
	Recipients     []string `json:"report_recipients"`
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var form settingsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	s, err := h.service.UpdateSettings(r.Context(), UpdateSettingsInput{
		Timezone:       form.Timezone,
		ReportTime:     form.ReportTime,
		SendOnWeekends: form.SendOnWeekends,
		Recipients:     form.Recipients,
	})
	if err != nil {
		h.respondError(w, "update report settings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidTimezone),
		errors.Is(err, ErrInvalidTime), errors.Is(err, ErrNoRecipients):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateDate), errors.Is(err, ErrRunning):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
