package lead

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates the billing lifecycle of a lead. billable is the
// initial state; the other three are terminal.
type PaymentStatus string

const (
	StatusBillable     PaymentStatus = "billable"
	StatusPaid         PaymentStatus = "paid"
	StatusPaidByCredit PaymentStatus = "paid_by_credit"
	StatusCredited     PaymentStatus = "credited"
)

// Valid reports whether the status is a known value.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusBillable, StatusPaid, StatusPaidByCredit, StatusCredited:
		return true
	}
	return false
}

// Terminal reports whether no transition leads out of the status.
func (s PaymentStatus) Terminal() bool {
	return s.Valid() && s != StatusBillable
}

// Billable reports whether the lead still counts toward client billing.
func (s PaymentStatus) Billable() bool {
	return s == StatusBillable || s == StatusPaid || s == StatusPaidByCredit
}

// Sentinel errors for the lead module.
var (
	ErrNotFound          = errors.New("lead: not found")
	ErrClientRequired    = errors.New("lead: client required")
	ErrNameRequired      = errors.New("lead: name required")
	ErrAlreadyCredited   = errors.New("lead: already credited")
	ErrAlreadyReported   = errors.New("lead: already attached to a daily report")
	ErrInvalidTransition = errors.New("lead: invalid payment status transition")
	ErrNotEditable       = errors.New("lead: no longer editable")
)

// Lead model. report_id is stamped once by the daily aggregation job; after
// that the lead's billing facts are frozen.
type Lead struct {
	ID             int64
	ClientID       *int64
	ProductID      *int64
	Name           string
	Phone          string
	Address        string
	AdditionalInfo string
	PaymentStatus  PaymentStatus
	CreditedReason string
	CreditedBy     string
	CreditedAt     *time.Time
	ReportID       *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reported reports whether the lead has been folded into a daily report.
func (l *Lead) Reported() bool {
	return l.ReportID != nil
}

// EnsureTransition validates a payment status change against the state
// machine. Reported leads are frozen regardless of target.
func (l *Lead) EnsureTransition(to PaymentStatus) error {
	if l.Reported() {
		return ErrAlreadyReported
	}
	if to == StatusCredited && l.PaymentStatus == StatusCredited {
		return ErrAlreadyCredited
	}
	if l.PaymentStatus != StatusBillable {
		return ErrInvalidTransition
	}
	if !to.Valid() || to == StatusBillable {
		return ErrInvalidTransition
	}
	return nil
}

// EnsureEditable validates that product assignment is still allowed: only
// while billable and not yet reported.
func (l *Lead) EnsureEditable() error {
	if l.Reported() {
		return ErrNotEditable
	}
	if l.PaymentStatus != StatusBillable {
		return ErrNotEditable
	}
	return nil
}

// CreateLeadInput for registering an inbound lead.
type CreateLeadInput struct {
	ClientID       int64
	ProductID      *int64
	Name           string
	Phone          string
	Address        string
	AdditionalInfo string
}

// Detail joins a lead with its client and product for display.
type Detail struct {
	Lead
	ClientName   string
	ClientEmail  string
	ClientPhone  string
	ProductName  string
	ProductPrice decimal.Decimal
}

// ListFilter narrows lead listings.
type ListFilter struct {
	ClientID int64
	Status   PaymentStatus
	From     time.Time
	To       time.Time
	Limit    int
}
