package lead

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryLeadRepo struct {
	leads          map[int64]*Lead
	nextID         int64
	leadsPaidToday map[int64]int

	// beforeTransition runs at the start of TransitionBilling, letting tests
	// interleave a concurrent mutation between the service's read and its
	// conditional update.
	beforeTransition func()
}

func newMemoryLeadRepo() *memoryLeadRepo {
	return &memoryLeadRepo{leads: make(map[int64]*Lead), leadsPaidToday: make(map[int64]int)}
}

func (r *memoryLeadRepo) CreateLead(ctx context.Context, input CreateLeadInput) (*Lead, error) {
	r.nextID++
	clientID := input.ClientID
	l := &Lead{
		ID:             r.nextID,
		ClientID:       &clientID,
		ProductID:      input.ProductID,
		Name:           input.Name,
		Phone:          input.Phone,
		Address:        input.Address,
		AdditionalInfo: input.AdditionalInfo,
		PaymentStatus:  StatusBillable,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	r.leads[l.ID] = l
	return l, nil
}

func (r *memoryLeadRepo) GetLead(ctx context.Context, id int64) (*Lead, error) {
	l, ok := r.leads[id]
	if !ok {
		return nil, nil
	}
	copied := *l
	return &copied, nil
}

func (r *memoryLeadRepo) GetLeadDetail(ctx context.Context, id int64) (*Detail, error) {
	l, ok := r.leads[id]
	if !ok {
		return nil, nil
	}
	return &Detail{Lead: *l}, nil
}

func (r *memoryLeadRepo) ListLeads(ctx context.Context, filter ListFilter) ([]Detail, error) {
	var out []Detail
	for _, l := range r.leads {
		if filter.ClientID != 0 && (l.ClientID == nil || *l.ClientID != filter.ClientID) {
			continue
		}
		if filter.Status != "" && l.PaymentStatus != filter.Status {
			continue
		}
		if !filter.From.IsZero() && l.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !l.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, Detail{Lead: *l})
	}
	return out, nil
}

func (r *memoryLeadRepo) TransitionBilling(ctx context.Context, id int64, to PaymentStatus) (bool, error) {
	if r.beforeTransition != nil {
		r.beforeTransition()
	}
	l, ok := r.leads[id]
	if !ok || l.PaymentStatus != StatusBillable || l.Reported() {
		return false, nil
	}
	l.PaymentStatus = to
	if l.ClientID != nil && (to == StatusPaid || to == StatusPaidByCredit) {
		r.leadsPaidToday[*l.ClientID]++
	}
	return true, nil
}

func (r *memoryLeadRepo) AssignProduct(ctx context.Context, id int64, productID *int64) (bool, error) {
	l, ok := r.leads[id]
	if !ok || l.PaymentStatus != StatusBillable || l.Reported() {
		return false, nil
	}
	l.ProductID = productID
	return true, nil
}

func newTestService(repo *memoryLeadRepo) *Service {
	return NewService(repo, time.UTC)
}

func TestCreateLeadStartsBillable(t *testing.T) {
	repo := newMemoryLeadRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.CreateLead(ctx, CreateLeadInput{Name: "Jordan"})
	require.ErrorIs(t, err, ErrClientRequired)

	_, err = svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "  "})
	require.ErrorIs(t, err, ErrNameRequired)

	l, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Jordan"})
	require.NoError(t, err)
	require.Equal(t, StatusBillable, l.PaymentStatus)
	require.Nil(t, l.ReportID)
}

func TestMarkPaidTransitions(t *testing.T) {
	repo := newMemoryLeadRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	l, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Jordan"})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.PaymentStatus)
	require.Equal(t, 1, repo.leadsPaidToday[1])

	// paid is terminal
	_, err = svc.MarkPaid(ctx, l.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.MarkPaidByCredit(ctx, l.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionRejectsReportedLead(t *testing.T) {
	repo := newMemoryLeadRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	l, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Jordan"})
	require.NoError(t, err)

	reportID := int64(7)
	repo.leads[l.ID].ReportID = &reportID

	_, err = svc.MarkPaid(ctx, l.ID)
	require.ErrorIs(t, err, ErrAlreadyReported)
}

func TestAssignProductOnlyWhileBillableAndUnreported(t *testing.T) {
	repo := newMemoryLeadRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	l, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Jordan"})
	require.NoError(t, err)

	productID := int64(3)
	updated, err := svc.AssignProduct(ctx, l.ID, &productID)
	require.NoError(t, err)
	require.Equal(t, &productID, updated.ProductID)

	_, err = svc.MarkPaid(ctx, l.ID)
	require.NoError(t, err)
	_, err = svc.AssignProduct(ctx, l.ID, nil)
	require.ErrorIs(t, err, ErrNotEditable)

	frozen, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Casey"})
	require.NoError(t, err)
	reportID := int64(9)
	repo.leads[frozen.ID].ReportID = &reportID
	_, err = svc.AssignProduct(ctx, frozen.ID, &productID)
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestEnsureTransitionTable(t *testing.T) {
	reportID := int64(1)
	cases := []struct {
		name string
		lead Lead
		to   PaymentStatus
		want error
	}{
		{"billable to paid", Lead{PaymentStatus: StatusBillable}, StatusPaid, nil},
		{"billable to paid_by_credit", Lead{PaymentStatus: StatusBillable}, StatusPaidByCredit, nil},
		{"billable to credited", Lead{PaymentStatus: StatusBillable}, StatusCredited, nil},
		{"credited twice", Lead{PaymentStatus: StatusCredited}, StatusCredited, ErrAlreadyCredited},
		{"paid to credited", Lead{PaymentStatus: StatusPaid}, StatusCredited, ErrInvalidTransition},
		{"billable to billable", Lead{PaymentStatus: StatusBillable}, StatusBillable, ErrInvalidTransition},
		{"reported lead", Lead{PaymentStatus: StatusBillable, ReportID: &reportID}, StatusCredited, ErrAlreadyReported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.lead.EnsureTransition(tc.to)
			if tc.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestTransitionRaceFallsBackToPreciseError(t *testing.T) {
	repo := newMemoryLeadRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	l, err := svc.CreateLead(ctx, CreateLeadInput{ClientID: 1, Name: "Jordan"})
	require.NoError(t, err)

	repo.beforeTransition = func() {
		repo.leads[l.ID].PaymentStatus = StatusCredited
	}
	_, err = svc.MarkPaid(ctx, l.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
