package client

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates client lifecycle states.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusSuspended Status = "suspended"
)

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusSuspended:
		return true
	}
	return false
}

// Client model. The daily counters are reset by the counter-reset job; the
// credit balance is owned exclusively by the ledger engine.
type Client struct {
	ID                 int64
	Name               string
	Email              string
	Phone              string
	Status             Status
	CreditBalance      int64
	LeadsReceivedToday int
	LeadsPaidToday     int
	CreditsIssuedToday int
	TotalLeadsCount    int64
	LifetimeRevenue    decimal.Decimal
	LastResetDate      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateClientInput for registering a new client.
type CreateClientInput struct {
	Name  string
	Email string
	Phone string
}

// UpdateClientInput for editing contact info and status.
type UpdateClientInput struct {
	Name   string
	Email  string
	Phone  string
	Status Status
}
