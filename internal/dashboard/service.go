package dashboard

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leadledger/leadledger/internal/client"
	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/ledger"
)

// DayStats aggregates one day's lead activity.
type DayStats struct {
	LeadsDelivered int `json:"leads_delivered"`
	CreditsIssued  int `json:"credits_issued"`
	NetBillable    int `json:"net_billable"`
}

// Summary is the admin dashboard payload: today's activity with the previous
// day for comparison, the busiest clients, and the latest ledger entries.
type Summary struct {
	Today         DayStats             `json:"today"`
	Yesterday     DayStats             `json:"yesterday"`
	ActiveClients int                  `json:"active_clients"`
	TopClients    []client.Client      `json:"top_clients"`
	RecentCredits []ledger.EntryDetail `json:"recent_credits"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// LeadSource lists leads for a window.
type LeadSource interface {
	ListLeads(ctx context.Context, filter lead.ListFilter) ([]lead.Detail, error)
}

// ClientSource lists clients for the overview widgets.
type ClientSource interface {
	ListActiveClients(ctx context.Context) ([]client.Client, error)
	ListClientsWithLeadsToday(ctx context.Context) ([]client.Client, error)
}

// LedgerSource lists the latest ledger entries.
type LedgerSource interface {
	ListRecentCredits(ctx context.Context, limit int) ([]ledger.EntryDetail, error)
}

const (
	recentCreditsLimit = 10
	topClientsLimit    = 5
)

// Service assembles the dashboard summary from the domain services, behind a
// short-lived versioned cache.
type Service struct {
	leads    LeadSource
	clients  ClientSource
	ledger   LedgerSource
	cache    *Cache
	timezone *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a Service instance. The location defines the day boundary
// for the today/yesterday split.
func NewService(leads LeadSource, clients ClientSource, entries LedgerSource, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		leads:    leads,
		clients:  clients,
		ledger:   entries,
		cache:    cache,
		timezone: loc,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetSummary returns the dashboard summary, cached per day and cache version.
func (s *Service) GetSummary(ctx context.Context) (*Summary, error) {
	today := s.dayStart(s.now())
	key, err := s.cache.BuildKey(ctx, keySummary(today.Format(time.DateOnly)))
	if err != nil {
		return nil, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.loadSummary(ctx, today)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Service) loadSummary(ctx context.Context, today time.Time) (*Summary, error) {
	summary := Summary{GeneratedAt: s.now().UTC()}
	yesterday := today.AddDate(0, 0, -1)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		leads, err := s.leads.ListLeads(ctx, lead.ListFilter{From: today, To: today.AddDate(0, 0, 1)})
		if err != nil {
			return err
		}
		summary.Today = foldStats(leads)
		return nil
	})

	g.Go(func() error {
		leads, err := s.leads.ListLeads(ctx, lead.ListFilter{From: yesterday, To: today})
		if err != nil {
			return err
		}
		summary.Yesterday = foldStats(leads)
		return nil
	})

	g.Go(func() error {
		active, err := s.clients.ListActiveClients(ctx)
		if err != nil {
			return err
		}
		summary.ActiveClients = len(active)
		return nil
	})

	g.Go(func() error {
		busiest, err := s.clients.ListClientsWithLeadsToday(ctx)
		if err != nil {
			return err
		}
		if len(busiest) > topClientsLimit {
			busiest = busiest[:topClientsLimit]
		}
		summary.TopClients = busiest
		return nil
	})

	g.Go(func() error {
		credits, err := s.ledger.ListRecentCredits(ctx, recentCreditsLimit)
		if err != nil {
			return err
		}
		summary.RecentCredits = credits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Invalidate bumps the cache version after a mutation or a scheduled job.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("dashboard cache bump", slog.Any("error", err))
	}
}

func (s *Service) dayStart(t time.Time) time.Time {
	t = t.In(s.timezone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.timezone)
}

func foldStats(leads []lead.Detail) DayStats {
	var stats DayStats
	for _, l := range leads {
		stats.LeadsDelivered++
		switch {
		case l.PaymentStatus == lead.StatusCredited:
			stats.CreditsIssued++
		case l.PaymentStatus.Billable():
			stats.NetBillable++
		}
	}
	return stats
}
