package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/leadledger/leadledger/internal/client"
	"github.com/leadledger/leadledger/internal/lead"
	"github.com/leadledger/leadledger/internal/ledger"
)

type fakeSources struct {
	leads     map[string][]lead.Detail
	clients   []client.Client
	busiest   []client.Client
	credits   []ledger.EntryDetail
	leadCalls int
}

func detail(status lead.PaymentStatus) lead.Detail {
	return lead.Detail{Lead: lead.Lead{PaymentStatus: status}}
}

func (f *fakeSources) ListLeads(ctx context.Context, filter lead.ListFilter) ([]lead.Detail, error) {
	f.leadCalls++
	return f.leads[filter.From.Format(time.DateOnly)], nil
}

func (f *fakeSources) ListActiveClients(ctx context.Context) ([]client.Client, error) {
	return f.clients, nil
}

func (f *fakeSources) ListClientsWithLeadsToday(ctx context.Context) ([]client.Client, error) {
	return f.busiest, nil
}

func (f *fakeSources) ListRecentCredits(ctx context.Context, limit int) ([]ledger.EntryDetail, error) {
	if len(f.credits) > limit {
		return f.credits[:limit], nil
	}
	return f.credits, nil
}

func newFakeSources() *fakeSources {
	return &fakeSources{
		leads: map[string][]lead.Detail{
			"2025-06-02": {
				detail(lead.StatusBillable),
				detail(lead.StatusPaid),
				detail(lead.StatusCredited),
			},
			"2025-06-01": {
				detail(lead.StatusPaidByCredit),
			},
		},
		clients: []client.Client{{ID: 1}, {ID: 2}, {ID: 3}},
		busiest: []client.Client{{ID: 2, Name: "Beta Roofing"}},
		credits: []ledger.EntryDetail{{ClientName: "Beta Roofing"}},
	}
}

func testClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	}
}

func TestGetSummary(t *testing.T) {
	src := newFakeSources()
	svc := NewService(src, src, src, nil, time.UTC, nil)
	svc.WithNow(testClock())

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)

	require.Equal(t, DayStats{LeadsDelivered: 3, CreditsIssued: 1, NetBillable: 2}, summary.Today)
	require.Equal(t, DayStats{LeadsDelivered: 1, NetBillable: 1}, summary.Yesterday)
	require.Equal(t, 3, summary.ActiveClients)
	require.Len(t, summary.TopClients, 1)
	require.Len(t, summary.RecentCredits, 1)
}

func TestGetSummaryCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(redisClient, time.Minute)

	src := newFakeSources()
	svc := NewService(src, src, src, cache, time.UTC, nil)
	svc.WithNow(testClock())
	ctx := context.Background()

	first, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	calls := src.leadCalls

	// Second read hits the cache, leaving source call counts unchanged.
	second, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, calls, src.leadCalls)
	require.Equal(t, first.Today, second.Today)

	// A version bump forces a reload.
	svc.Invalidate(ctx)
	_, err = svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Greater(t, src.leadCalls, calls)
}
