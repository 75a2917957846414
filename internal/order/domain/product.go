package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	ImageURL string          `json:"imageUrl,omitempty"`
}

// SaleEntry is one append-only ledger row per order item, the audit trail
// of inventory movement. Never updated or deleted.
type SaleEntry struct {
	UserID         int64
	ProductID      int64
	Quantity       int
	Amount         decimal.Decimal
	PaymentMethod  string
	PaymentDetails []byte
}

// AuditRecord is what the external audit sink receives after a sale commits.
type AuditRecord struct {
	UserID    int64
	OrderID   int64
	Amount    decimal.Decimal
	Timestamp time.Time
}
