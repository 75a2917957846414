package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventOrderCreated is the event kind published to the fulfillment queue
// after an order commits.
const EventOrderCreated = "ORDER_CREATED"

type OrderCreated struct {
	Event     string          `json:"event"`
	OrderID   int64           `json:"orderId"`
	UserID    int64           `json:"userId"`
	Total     decimal.Decimal `json:"total"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewOrderCreated(o Order) OrderCreated {
	return OrderCreated{
		Event:     EventOrderCreated,
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Timestamp: o.CreatedAt,
	}
}
