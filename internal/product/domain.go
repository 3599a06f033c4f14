package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product model. Price is the amount billed per delivered lead for this
// product and feeds daily report revenue.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductInput for create and update operations.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
}
