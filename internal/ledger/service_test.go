package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/shared"
)

type memoryClient struct {
	balance            int64
	creditsIssuedToday int
}

type memoryLedgerRepo struct {
	mu      sync.Mutex
	clients map[int64]*memoryClient
	leads   map[int64]*lead.Lead
	entries []Entry
	nextID  int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		clients: make(map[int64]*memoryClient),
		leads:   make(map[int64]*lead.Lead),
	}
}

// InTx serializes all ledger work behind one mutex, mirroring the row locks
// the real repository takes.
func (r *memoryLedgerRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx TxPort) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, (*memoryTx)(r))
}

type memoryTx memoryLedgerRepo

func (t *memoryTx) GetClientBalanceForUpdate(ctx context.Context, clientID int64) (int64, bool, error) {
	c, ok := t.clients[clientID]
	if !ok {
		return 0, false, nil
	}
	return c.balance, true, nil
}

func (t *memoryTx) GetLeadForUpdate(ctx context.Context, leadID int64) (*lead.Lead, error) {
	l, ok := t.leads[leadID]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (t *memoryTx) SetClientBalance(ctx context.Context, clientID, balance int64, creditsIssuedDelta int) error {
	c := t.clients[clientID]
	c.balance = balance
	c.creditsIssuedToday += creditsIssuedDelta
	return nil
}

func (t *memoryTx) MarkLeadCredited(ctx context.Context, leadID int64, reason Reason, actor string, at time.Time) error {
	l := t.leads[leadID]
	l.PaymentStatus = lead.StatusCredited
	l.CreditedReason = string(reason)
	l.CreditedBy = actor
	l.CreditedAt = &at
	return nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, entry Entry) (*Entry, error) {
	t.nextID++
	entry.ID = t.nextID
	t.entries = append(t.entries, entry)
	return &entry, nil
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]EntryDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EntryDetail
	for _, e := range r.entries {
		if filter.ClientID != 0 && e.ClientID != filter.ClientID {
			continue
		}
		if filter.LeadID != 0 && (e.LeadID == nil || *e.LeadID != filter.LeadID) {
			continue
		}
		out = append(out, EntryDetail{Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryLedgerRepo) CountEntries(ctx context.Context, filter EntryFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if filter.ClientID != 0 && e.ClientID != filter.ClientID {
			continue
		}
		if filter.LeadID != 0 && (e.LeadID == nil || *e.LeadID != filter.LeadID) {
			continue
		}
		count++
	}
	return count, nil
}

func (r *memoryLedgerRepo) addClient(id int64, balance int64) {
	r.clients[id] = &memoryClient{balance: balance}
}

func (r *memoryLedgerRepo) addBillableLead(id, clientID int64) {
	r.leads[id] = &lead.Lead{ID: id, ClientID: &clientID, PaymentStatus: lead.StatusBillable}
}

func newTestService(repo *memoryLedgerRepo) *Service {
	return NewService(repo, nil, nil)
}

func TestAdjustClientCreditsClampsAtZero(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 2)
	svc := newTestService(repo)
	ctx := context.Background()

	entry, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{
		ClientID: 1, Amount: 5, Direction: DirectionAdd, Actor: "dana",
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), entry.Amount)
	require.Equal(t, int64(7), entry.BalanceAfter)
	require.Equal(t, TypeAdd, entry.Type)
	require.Equal(t, ReasonManualAdjustment, entry.Reason)

	// Removing more than available floors at zero; the entry records the
	// clamped effective delta, not the requested one.
	entry, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{
		ClientID: 1, Amount: 10, Direction: DirectionRemove, Actor: "dana",
	})
	require.NoError(t, err)
	require.Equal(t, int64(-7), entry.Amount)
	require.Equal(t, int64(0), entry.BalanceAfter)
	require.Equal(t, TypeDeduct, entry.Type)
	require.Equal(t, int64(0), repo.clients[1].balance)
}

func TestAdjustClientCreditsValidation(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{ClientID: 1, Amount: 0, Direction: DirectionAdd})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{ClientID: 1, Amount: -3, Direction: DirectionAdd})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{ClientID: 1, Amount: 1, Direction: Direction("transfer")})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{ClientID: 1, Amount: 1, Direction: DirectionAdd, Reason: Reason("vibes")})
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{ClientID: 99, Amount: 1, Direction: DirectionAdd})
	require.ErrorIs(t, err, ErrClientNotFound)
	require.Empty(t, repo.entries)
}

func TestBalanceAfterChainConsistency(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 3)
	svc := newTestService(repo)
	ctx := context.Background()

	ops := []AdjustCreditsInput{
		{ClientID: 1, Amount: 4, Direction: DirectionAdd},
		{ClientID: 1, Amount: 2, Direction: DirectionRemove},
		{ClientID: 1, Amount: 20, Direction: DirectionRemove},
		{ClientID: 1, Amount: 1, Direction: DirectionAdd},
	}
	for _, op := range ops {
		_, err := svc.AdjustClientCredits(ctx, op)
		require.NoError(t, err)
	}

	prev := int64(3)
	for _, e := range repo.entries {
		require.Equal(t, prev+e.Amount, e.BalanceAfter, "entry %d breaks the balance chain", e.ID)
		require.GreaterOrEqual(t, e.BalanceAfter, int64(0))
		prev = e.BalanceAfter
	}
	require.Equal(t, prev, repo.clients[1].balance)
}

func TestIssueCreditToLead(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 2)
	repo.addBillableLead(10, 1)
	svc := newTestService(repo)
	at := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return at })
	ctx := context.Background()

	entry, err := svc.IssueCreditToLead(ctx, IssueCreditInput{
		LeadID: 10, Amount: 1, Reason: ReasonPoorLeadQuality, Actor: "dana",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.Amount)
	require.Equal(t, int64(3), entry.BalanceAfter)
	require.Equal(t, TypeQualityAdjustment, entry.Type)
	require.NotNil(t, entry.LeadID)
	require.Equal(t, int64(10), *entry.LeadID)

	l := repo.leads[10]
	require.Equal(t, lead.StatusCredited, l.PaymentStatus)
	require.Equal(t, string(ReasonPoorLeadQuality), l.CreditedReason)
	require.Equal(t, "dana", l.CreditedBy)
	require.Equal(t, at, *l.CreditedAt)
	require.Equal(t, 1, repo.clients[1].creditsIssuedToday)
}

func TestIssueCreditTwiceIsRejected(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	repo.addBillableLead(10, 1)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 10, Amount: 1, Reason: ReasonDuplicate})
	require.NoError(t, err)

	_, err = svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 10, Amount: 1, Reason: ReasonDuplicate})
	require.ErrorIs(t, err, lead.ErrAlreadyCredited)
	require.Equal(t, int64(1), repo.clients[1].balance)
	require.Len(t, repo.entries, 1)
}

func TestIssueCreditGuards(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 404, Amount: 1})
	require.ErrorIs(t, err, ErrLeadNotFound)

	repo.leads[20] = &lead.Lead{ID: 20, PaymentStatus: lead.StatusBillable}
	_, err = svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 20, Amount: 1})
	require.ErrorIs(t, err, ErrLeadUnassigned)

	clientID := int64(1)
	reportID := int64(5)
	repo.leads[21] = &lead.Lead{ID: 21, ClientID: &clientID, PaymentStatus: lead.StatusBillable, ReportID: &reportID}
	_, err = svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 21, Amount: 1})
	require.ErrorIs(t, err, lead.ErrAlreadyReported)

	repo.leads[22] = &lead.Lead{ID: 22, ClientID: &clientID, PaymentStatus: lead.StatusPaid}
	_, err = svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 22, Amount: 1})
	require.ErrorIs(t, err, lead.ErrInvalidTransition)

	require.Empty(t, repo.entries)
	require.Equal(t, int64(0), repo.clients[1].balance)
}

func TestConcurrentAdjustmentsSerialize(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	svc := newTestService(repo)
	ctx := context.Background()

	const workers = 8
	const opsPerWorker = 25
	errs := make(chan error, workers*opsPerWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerWorker; j++ {
				_, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{
					ClientID: 1, Amount: 1, Direction: DirectionAdd,
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, int64(workers*opsPerWorker), repo.clients[1].balance)

	// Every entry must snapshot the exact balance at its commit point.
	seen := make(map[int64]bool)
	for _, e := range repo.entries {
		require.False(t, seen[e.BalanceAfter], "duplicate balance_after %d", e.BalanceAfter)
		seen[e.BalanceAfter] = true
	}
}

type countingNotifier struct {
	calls int
}

func (n *countingNotifier) Invalidate(ctx context.Context) {
	n.calls++
}

func TestMutationsNotifyCache(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	repo.addBillableLead(7, 1)
	svc := newTestService(repo)
	notifier := &countingNotifier{}
	svc.WithNotifier(notifier)
	ctx := context.Background()

	_, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{
		ClientID: 1, Amount: 3, Direction: DirectionAdd, Actor: "dana",
	})
	require.NoError(t, err)
	require.Equal(t, 1, notifier.calls)

	_, err = svc.IssueCreditToLead(ctx, IssueCreditInput{LeadID: 7, Amount: 2, Actor: "dana"})
	require.NoError(t, err)
	require.Equal(t, 2, notifier.calls)

	// Rejected mutations leave the cache alone.
	_, err = svc.AdjustClientCredits(ctx, AdjustCreditsInput{
		ClientID: 99, Amount: 1, Direction: DirectionAdd, Actor: "dana",
	})
	require.ErrorIs(t, err, ErrClientNotFound)
	require.Equal(t, 2, notifier.calls)
}

func TestListCreditsPage(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 0)
	svc := newTestService(repo)
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	svc.WithNow(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{
			ClientID: 1, Amount: int64(i + 1), Direction: DirectionAdd, Actor: "dana",
		})
		require.NoError(t, err)
	}

	entries, pagination, err := svc.ListCreditsPage(ctx, EntryFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, 2, pagination.Page)
	require.Equal(t, 2, pagination.PerPage)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)
	// Newest first: page 2 of size 2 holds the third and fourth newest.
	require.Equal(t, int64(3), entries[0].Amount)
	require.Equal(t, int64(2), entries[1].Amount)

	entries, pagination, err = svc.ListCreditsPage(ctx, EntryFilter{}, 4, 2)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, 3, pagination.TotalPages)
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func TestAuditRecordsRequestedAmount(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.addClient(1, 30)
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	ctx := context.Background()

	// A clamped removal writes the effective delta to the ledger but the
	// audit trail keeps the amount the operator asked for.
	_, err := svc.AdjustClientCredits(ctx, AdjustCreditsInput{
		ClientID: 1, Amount: 50, Direction: DirectionRemove, Actor: "dana",
	})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, int64(-30), audit.logs[0].Meta["amount"])
	require.Equal(t, int64(-50), audit.logs[0].Meta["requested_amount"])
	require.Equal(t, int64(0), audit.logs[0].Meta["balance_after"])
}
