package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

type Config struct {
	// TaxRate is applied once to the order subtotal.
	TaxRate decimal.Decimal
	// LowStockThreshold triggers a restock notification when a product's
	// remaining stock drops below it after a sale. Zero disables alerts.
	LowStockThreshold int
}

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	queue    EventPublisher
	notifier Notifier
	auditor  Auditor
	cfg      Config
}

func NewService(log *slog.Logger, repo OrderRepository, queue EventPublisher, notifier Notifier, auditor Auditor, cfg Config) *Service {
	if cfg.TaxRate.IsZero() {
		cfg.TaxRate = domain.DefaultTaxRate
	}
	return &Service{log: log, repo: repo, queue: queue, notifier: notifier, auditor: auditor, cfg: cfg}
}

// CreateOrderInput mirrors the order creation request body. Items stays raw
// so shape problems can be reported per item instead of as one opaque
// decode failure.
type CreateOrderInput struct {
	Items          json.RawMessage `json:"items"`
	PaymentMethod  string          `json:"paymentMethod"`
	PaymentDetails json.RawMessage `json:"paymentDetails"`
}

type itemInput struct {
	ProductID any `json:"productId"`
	Quantity  any `json:"quantity"`
}

func (s *Service) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (domain.Order, error) {
	lines, err := parseItems(in.Items)
	if err != nil {
		return domain.Order{}, err
	}

	method := in.PaymentMethod
	if method == "" {
		method = "unknown"
	}

	order, err := s.repo.CreateOrder(ctx, domain.NewOrderSpec{
		UserID:         userID,
		Lines:          lines,
		PaymentMethod:  method,
		PaymentDetails: in.PaymentDetails,
		TaxRate:        s.cfg.TaxRate,
	})
	if err != nil {
		return domain.Order{}, err
	}

	// Post-commit collaborators are best effort: the order is already
	// durable, so their failures are logged and swallowed.
	s.afterCommit(context.WithoutCancel(ctx), order)
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, userID)
}

func parseItems(raw json.RawMessage) ([]domain.OrderLine, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, domain.Clientf("'items' is required")
	}
	var items []itemInput
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, domain.Clientf("'items' must be a list")
	}
	if len(items) == 0 {
		return nil, domain.Clientf("'items' must contain at least one product")
	}

	lines := make([]domain.OrderLine, 0, len(items))
	for i, it := range items {
		n := i + 1
		if it.ProductID == nil || it.Quantity == nil {
			return nil, domain.Clientf("item %d must include productId and quantity", n)
		}
		pid, ok := asPositiveInt(it.ProductID)
		if !ok {
			return nil, domain.Clientf("item %d has an invalid productId", n)
		}
		qty, ok := asPositiveInt(it.Quantity)
		if !ok {
			return nil, domain.Clientf("item %d has an invalid quantity", n)
		}
		lines = append(lines, domain.OrderLine{ProductID: pid, Quantity: int(qty)})
	}
	return lines, nil
}

// asPositiveInt accepts only a JSON number that is a strictly positive
// integer. Strings, fractions and non-positive values are rejected.
func asPositiveInt(v any) (int64, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	if f <= 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

func (s *Service) afterCommit(ctx context.Context, o domain.Order) {
	if s.queue != nil {
		body, err := json.Marshal(domain.NewOrderCreated(o))
		if err != nil {
			s.log.Error("fulfillment event encode failed", "order_id", o.ID, "err", err)
		} else if err := s.queue.Publish(ctx, body); err != nil {
			s.log.Error("fulfillment event publish failed", "order_id", o.ID, "err", err)
		}
	}

	if s.auditor != nil {
		rec := domain.AuditRecord{
			UserID:    o.UserID,
			OrderID:   o.ID,
			Amount:    o.Total,
			Timestamp: o.CreatedAt,
		}
		if err := s.auditor.Record(ctx, rec); err != nil {
			s.log.Error("audit record failed", "order_id", o.ID, "err", err)
		}
	}

	if s.notifier != nil && s.cfg.LowStockThreshold > 0 {
		for _, it := range o.Items {
			if it.Product == nil || it.Product.Stock >= s.cfg.LowStockThreshold {
				continue
			}
			subject := fmt.Sprintf("Low stock alert: %s", it.Product.Name)
			msg := fmt.Sprintf("Product %q is down to %d units after order %d. Restock needed.",
				it.Product.Name, it.Product.Stock, o.ID)
			if err := s.notifier.Notify(ctx, subject, msg); err != nil {
				s.log.Error("low stock notification failed", "product_id", it.ProductID, "err", err)
			}
		}
	}
}
