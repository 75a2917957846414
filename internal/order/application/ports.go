package application

import (
	"context"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

type OrderRepository interface {
	// CreateOrder runs the whole order algorithm in one atomic transaction:
	// per-line product resolution, stock check and decrement, sale ledger
	// append, totals, order + item rows. All-or-nothing.
	CreateOrder(ctx context.Context, spec domain.NewOrderSpec) (domain.Order, error)
	// ListOrders returns the user's orders newest first, items included
	// with denormalized product detail.
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
}

// EventPublisher hands the serialized fulfillment event to the external
// queue. Invoked post-commit, best effort.
type EventPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Notifier is the free-text notification sink (best effort, post-commit).
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// Auditor is the external audit sink (best effort, post-commit).
type Auditor interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}
