package lead

import (
	"context"
	"strings"
	"time"
)

// RepositoryPort defines data access methods for leads.
type RepositoryPort interface {
	// CreateLead inserts the lead and bumps the owning client's
	// leads_received_today and total_leads_count in one transaction.
	CreateLead(ctx context.Context, input CreateLeadInput) (*Lead, error)
	GetLead(ctx context.Context, id int64) (*Lead, error)
	GetLeadDetail(ctx context.Context, id int64) (*Detail, error)
	ListLeads(ctx context.Context, filter ListFilter) ([]Detail, error)
	// TransitionBilling atomically moves a billable, unreported lead to the
	// target status, bumping leads_paid_today when the target is a paid
	// status. Returns false when the conditional update matched no row.
	TransitionBilling(ctx context.Context, id int64, to PaymentStatus) (bool, error)
	// AssignProduct updates product_id only while the lead is billable and
	// unreported. Returns false when the conditional update matched no row.
	AssignProduct(ctx context.Context, id int64, productID *int64) (bool, error)
}

// CacheNotifier learns about committed lead mutations so cached summaries
// can be refreshed.
type CacheNotifier interface {
	Invalidate(ctx context.Context)
}

// Service enforces the lead billing state machine.
type Service struct {
	repo     RepositoryPort
	notify   CacheNotifier
	timezone *time.Location
	now      func() time.Time
}

// NewService builds a Service instance. The location defines the "today"
// boundary for daily listings.
func NewService(repo RepositoryPort, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, timezone: loc, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithNotifier registers a cache notifier. Set after construction because the
// dashboard service consuming this package is built later in the wiring.
func (s *Service) WithNotifier(n CacheNotifier) {
	s.notify = n
}

func (s *Service) invalidate(ctx context.Context) {
	if s.notify != nil {
		s.notify.Invalidate(ctx)
	}
}

// CreateLead registers an inbound lead for a client. Leads start billable.
func (s *Service) CreateLead(ctx context.Context, input CreateLeadInput) (*Lead, error) {
	if input.ClientID == 0 {
		return nil, ErrClientRequired
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, ErrNameRequired
	}
	l, err := s.repo.CreateLead(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return l, nil
}

// GetLead returns one lead by id.
func (s *Service) GetLead(ctx context.Context, id int64) (*Lead, error) {
	l, err := s.repo.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

// GetLeadDetail returns one lead joined with client and product.
func (s *Service) GetLeadDetail(ctx context.Context, id int64) (*Detail, error) {
	d, err := s.repo.GetLeadDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrNotFound
	}
	return d, nil
}

// ListLeads returns leads newest-first, optionally filtered.
func (s *Service) ListLeads(ctx context.Context, filter ListFilter) ([]Detail, error) {
	return s.repo.ListLeads(ctx, filter)
}

// todayWindow returns the [start, end) bounds of the current day in the
// configured report timezone.
func (s *Service) todayWindow() (time.Time, time.Time) {
	now := s.now().In(s.timezone)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.timezone)
	return start, start.AddDate(0, 0, 1)
}

// ListTodaysLeads returns today's leads joined with client and product,
// optionally narrowed to one payment status.
func (s *Service) ListTodaysLeads(ctx context.Context, status PaymentStatus) ([]Detail, error) {
	from, to := s.todayWindow()
	return s.repo.ListLeads(ctx, ListFilter{Status: status, From: from, To: to})
}

// MarkPaid records external billing reconciliation: billable → paid.
func (s *Service) MarkPaid(ctx context.Context, id int64) (*Lead, error) {
	return s.transition(ctx, id, StatusPaid)
}

// MarkPaidByCredit records reconciliation settled from the client's credit
// balance: billable → paid_by_credit.
func (s *Service) MarkPaidByCredit(ctx context.Context, id int64) (*Lead, error) {
	return s.transition(ctx, id, StatusPaidByCredit)
}

func (s *Service) transition(ctx context.Context, id int64, to PaymentStatus) (*Lead, error) {
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.EnsureTransition(to); err != nil {
		return nil, err
	}
	ok, err := s.repo.TransitionBilling(ctx, id, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent transition or the report job.
		// Re-read to surface the precise rejection.
		current, err := s.GetLead(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, current.EnsureTransition(to)
	}
	s.invalidate(ctx)
	return s.GetLead(ctx, id)
}

// AssignProduct changes the lead's product while it is still editable.
func (s *Service) AssignProduct(ctx context.Context, id int64, productID *int64) (*Lead, error) {
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.EnsureEditable(); err != nil {
		return nil, err
	}
	ok, err := s.repo.AssignProduct(ctx, id, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEditable
	}
	return s.GetLead(ctx, id)
}
