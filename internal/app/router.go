package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leadledger/leadledger/internal/client"
	"github.com/leadledger/leadledger/internal/dashboard"
	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/ledger"
	"github.com/leadledger/leadledger/internal/observability"
	"github.com/leadledger/leadledger/internal/product"
	"github.com/leadledger/leadledger/internal/report"
	"github.com/leadledger/leadledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	ClientHandler    *client.Handler
	ProductHandler   *product.Handler
	LeadHandler      *lead.Handler
	LedgerHandler    *ledger.Handler
	ReportHandler    *report.Handler
	DashboardHandler *dashboard.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router for the admin API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(APITokenAuth(params.Config, params.Logger))
		r.Use(ActorContext)

		r.Route("/clients", func(r chi.Router) {
			params.ClientHandler.MountRoutes(r)
			if params.LedgerHandler != nil {
				params.LedgerHandler.MountClientRoutes(r)
			}
		})
		r.Route("/products", params.ProductHandler.MountRoutes)
		r.Route("/leads", func(r chi.Router) {
			params.LeadHandler.MountRoutes(r)
			if params.LedgerHandler != nil {
				params.LedgerHandler.MountLeadRoutes(r)
			}
		})
		if params.LedgerHandler != nil {
			r.Route("/credits", params.LedgerHandler.MountRoutes)
		}
		r.Route("/reports", params.ReportHandler.MountRoutes)
		if params.DashboardHandler != nil {
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
