package ledger

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/shared"
)

// TxPort exposes the row-level operations available inside one ledger
// transaction. Both client rows and lead rows are locked for the duration,
// which serializes concurrent mutations per client.
type TxPort interface {
	GetClientBalanceForUpdate(ctx context.Context, clientID int64) (balance int64, found bool, err error)
	GetLeadForUpdate(ctx context.Context, leadID int64) (*lead.Lead, error)
	SetClientBalance(ctx context.Context, clientID, balance int64, creditsIssuedDelta int) error
	MarkLeadCredited(ctx context.Context, leadID int64, reason Reason, actor string, at time.Time) error
	InsertEntry(ctx context.Context, entry Entry) (*Entry, error)
}

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]EntryDetail, error)
	CountEntries(ctx context.Context, filter EntryFilter) (int, error)
}

// AuditPort records balance-affecting operations for review.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheNotifier learns about committed balance mutations so cached summaries
// can be refreshed.
type CacheNotifier interface {
	Invalidate(ctx context.Context)
}

// Service is the single authority for mutating client credit balances.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	notify CacheNotifier
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
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

// AdjustCreditsInput parameterises a client-level balance adjustment.
type AdjustCreditsInput struct {
	ClientID  int64
	Amount    int64
	Direction Direction
	Reason    Reason
	Notes     string
	Actor     string
}

// AdjustClientCredits applies a manual adjustment to a client's balance and
// appends the ledger entry. Removals clamp at zero; the entry records the
// effective delta.
func (s *Service) AdjustClientCredits(ctx context.Context, input AdjustCreditsInput) (*Entry, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !input.Direction.Valid() {
		return nil, ErrInvalidDirection
	}
	if input.Reason == "" {
		input.Reason = ReasonManualAdjustment
	}
	if !input.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	if input.Actor == "" {
		input.Actor = shared.ActorFromContext(ctx)
	}

	requested := input.Amount
	entryType := TypeAdd
	if input.Direction == DirectionRemove {
		requested = -input.Amount
		entryType = TypeDeduct
	}

	var committed *Entry
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxPort) error {
		balance, found, err := tx.GetClientBalanceForUpdate(ctx, input.ClientID)
		if err != nil {
			return err
		}
		if !found {
			return ErrClientNotFound
		}
		newBalance, effective := ApplyDelta(balance, requested)
		if err := tx.SetClientBalance(ctx, input.ClientID, newBalance, 0); err != nil {
			return err
		}
		committed, err = tx.InsertEntry(ctx, Entry{
			ClientID:        input.ClientID,
			Type:            entryType,
			Amount:          effective,
			BalanceAfter:    newBalance,
			Reason:          input.Reason,
			AdditionalNotes: input.Notes,
			AdjustedBy:      input.Actor,
			CreatedAt:       s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "ledger.adjust", "client", input.ClientID, requested, committed)
	s.invalidate(ctx)
	return committed, nil
}

// IssueCreditInput parameterises a lead-specific credit.
type IssueCreditInput struct {
	LeadID int64
	Amount int64
	Reason Reason
	Notes  string
	Actor  string
}

// IssueCreditToLead credits the lead's owning client and transitions the
// lead billable → credited. Crediting an already-credited lead is an explicit
// rejection, never a silent no-op.
func (s *Service) IssueCreditToLead(ctx context.Context, input IssueCreditInput) (*Entry, error) {
	if input.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if input.Reason == "" {
		input.Reason = ReasonOther
	}
	if !input.Reason.Valid() {
		return nil, ErrInvalidReason
	}
	if input.Actor == "" {
		input.Actor = shared.ActorFromContext(ctx)
	}

	var committed *Entry
	err := s.repo.InTx(ctx, func(ctx context.Context, tx TxPort) error {
		l, err := tx.GetLeadForUpdate(ctx, input.LeadID)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrLeadNotFound
		}
		if l.ClientID == nil {
			return ErrLeadUnassigned
		}
		if err := l.EnsureTransition(lead.StatusCredited); err != nil {
			return err
		}
		balance, found, err := tx.GetClientBalanceForUpdate(ctx, *l.ClientID)
		if err != nil {
			return err
		}
		if !found {
			return ErrClientNotFound
		}
		newBalance := balance + input.Amount
		if err := tx.SetClientBalance(ctx, *l.ClientID, newBalance, 1); err != nil {
			return err
		}
		at := s.now()
		if err := tx.MarkLeadCredited(ctx, input.LeadID, input.Reason, input.Actor, at); err != nil {
			return err
		}
		leadID := input.LeadID
		committed, err = tx.InsertEntry(ctx, Entry{
			ClientID:        *l.ClientID,
			LeadID:          &leadID,
			Type:            TypeQualityAdjustment,
			Amount:          input.Amount,
			BalanceAfter:    newBalance,
			Reason:          input.Reason,
			AdditionalNotes: input.Notes,
			AdjustedBy:      input.Actor,
			CreatedAt:       at,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "ledger.issue_credit", "lead", input.LeadID, input.Amount, committed)
	s.invalidate(ctx)
	return committed, nil
}

// ListCredits returns ledger entries newest first.
func (s *Service) ListCredits(ctx context.Context, filter EntryFilter) ([]EntryDetail, error) {
	return s.repo.ListEntries(ctx, filter)
}

// ListCreditsPage returns one page of ledger entries with paging metadata.
func (s *Service) ListCreditsPage(ctx context.Context, filter EntryFilter, page, perPage int) ([]EntryDetail, shared.Pagination, error) {
	total, err := s.repo.CountEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	p := shared.NewPagination(page, perPage, total)
	filter.Limit = p.PerPage
	filter.Offset = (p.Page - 1) * p.PerPage
	entries, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, p, nil
}

// ListRecentCredits returns the latest entries, capped at limit.
func (s *Service) ListRecentCredits(ctx context.Context, limit int) ([]EntryDetail, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.ListEntries(ctx, EntryFilter{Limit: limit})
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, entityID, requested int64, entry *Entry) {
	if s.audit == nil || entry == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    entry.AdjustedBy,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta: map[string]any{
			"entry_id":         entry.ID,
			"client_id":        entry.ClientID,
			"amount":           entry.Amount,
			"requested_amount": requested,
			"balance_after":    entry.BalanceAfter,
			"reason":           entry.Reason,
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
