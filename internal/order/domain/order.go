package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusProcessed OrderStatus = "processed"
)

type Order struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	Items     []OrderItem     `json:"items"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	// Product carries denormalized detail when listing order history.
	Product *Product `json:"product,omitempty"`
}

// OrderLine is one requested {product, quantity} pair, already validated
// for shape. Duplicate product ids are legal; each line decrements the
// running in-transaction stock independently.
type OrderLine struct {
	ProductID int64
	Quantity  int
}

// NewOrderSpec is everything the store needs to create an order atomically.
type NewOrderSpec struct {
	UserID         int64
	Lines          []OrderLine
	PaymentMethod  string
	PaymentDetails json.RawMessage
	TaxRate        decimal.Decimal
}
