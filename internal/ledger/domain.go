package ledger

import (
	"errors"
	"time"
)

// AdjustmentType enumerates how a ledger entry affected the balance.
type AdjustmentType string

const (
	TypeAdd    AdjustmentType = "add"
	TypeDeduct AdjustmentType = "deduct"
	// TypeQualityAdjustment marks credits issued against a specific lead.
	TypeQualityAdjustment AdjustmentType = "quality_adjustment"
)

// Direction selects the sign of a client-level adjustment.
type Direction string

const (
	DirectionAdd    Direction = "add"
	DirectionRemove Direction = "remove"
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionAdd || d == DirectionRemove
}

// Reason enumerates why a balance-affecting event was recorded.
type Reason string

const (
	ReasonPoorLeadQuality  Reason = "poor_lead_quality"
	ReasonDuplicate        Reason = "duplicate"
	ReasonWrongServiceArea Reason = "wrong_service_area"
	ReasonCustomerGoodwill Reason = "customer_goodwill"
	ReasonManualAdjustment Reason = "manual_adjustment"
	ReasonAutoApplied      Reason = "auto_applied_to_lead"
	ReasonRetroactive      Reason = "retroactive_application"
	ReasonOther            Reason = "other"
)

// Valid reports whether the reason is a known value.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPoorLeadQuality, ReasonDuplicate, ReasonWrongServiceArea,
		ReasonCustomerGoodwill, ReasonManualAdjustment, ReasonAutoApplied,
		ReasonRetroactive, ReasonOther:
		return true
	}
	return false
}

// Sentinel errors for the ledger module.
var (
	ErrInvalidAmount    = errors.New("ledger: amount must be positive")
	ErrInvalidDirection = errors.New("ledger: adjustment type must be add or remove")
	ErrInvalidReason    = errors.New("ledger: unknown reason")
	ErrClientNotFound   = errors.New("ledger: client not found")
	ErrLeadNotFound     = errors.New("ledger: lead not found")
	ErrLeadUnassigned   = errors.New("ledger: lead has no owning client")
)

// Entry is one immutable record of a balance-affecting event. Amount holds
// the signed, effective delta; BalanceAfter snapshots the client balance at
// the instant of commit, so balance_after - amount always reproduces the
// prior balance.
type Entry struct {
	ID              int64
	ClientID        int64
	LeadID          *int64
	Type            AdjustmentType
	Amount          int64
	BalanceAfter    int64
	Reason          Reason
	AdditionalNotes string
	AdjustedBy      string
	CreatedAt       time.Time
}

// EntryDetail joins an entry with client and lead display names.
type EntryDetail struct {
	Entry
	ClientName string
	LeadName   string
}

// EntryFilter narrows ledger listings. Entries always come back newest first.
type EntryFilter struct {
	ClientID int64
	LeadID   int64
	Limit    int
	Offset   int
}

// ApplyDelta applies a signed adjustment to a balance, flooring at zero.
// Removing more credits than available clamps rather than failing; the
// returned effective delta is the amount recorded in the ledger.
func ApplyDelta(balance, requested int64) (newBalance, effective int64) {
	newBalance = balance + requested
	if newBalance < 0 {
		newBalance = 0
	}
	return newBalance, newBalance - balance
}
