package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// CreateOrder executes the whole order algorithm inside one transaction.
// Each product row is locked with SELECT ... FOR UPDATE before the stock
// check, so concurrent orders for the same product serialize instead of
// both passing the check and overselling. Any failure rolls everything
// back: no stock change, no ledger rows, no order.
func (r *Repository) CreateOrder(ctx context.Context, spec domain.NewOrderSpec) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	details := spec.PaymentDetails
	if len(details) == 0 || string(details) == "null" {
		details = nil
	}

	subtotal := decimal.Zero
	items := make([]domain.OrderItem, 0, len(spec.Lines))

	for _, line := range spec.Lines {
		var (
			name     string
			priceStr string
			stock    int
		)
		err := tx.QueryRow(ctx,
			`SELECT name, price::text, stock FROM products WHERE id = $1 FOR UPDATE`,
			line.ProductID,
		).Scan(&name, &priceStr, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.Clientf("product %d not found", line.ProductID)
		}
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve product %d: %w", line.ProductID, err)
		}
		if stock < line.Quantity {
			return domain.Order{}, domain.Clientf("insufficient stock for %q: available %d, requested %d",
				name, stock, line.Quantity)
		}

		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return domain.Order{}, fmt.Errorf("parse price of product %d: %w", line.ProductID, err)
		}
		lineSubtotal := price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)

		if _, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1`,
			line.ProductID, line.Quantity,
		); err != nil {
			return domain.Order{}, fmt.Errorf("decrement stock of product %d: %w", line.ProductID, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO sales (user_id, product_id, quantity, amount, payment_method, payment_details)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			spec.UserID, line.ProductID, line.Quantity, lineSubtotal.StringFixed(2),
			spec.PaymentMethod, details,
		); err != nil {
			return domain.Order{}, fmt.Errorf("append sale ledger entry: %w", err)
		}

		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Subtotal:  lineSubtotal.Round(2),
			Product: &domain.Product{
				ID:    line.ProductID,
				Name:  name,
				Price: price,
				Stock: stock - line.Quantity,
			},
		})
	}

	totals := domain.ComputeTotals(subtotal, spec.TaxRate)

	var (
		orderID   int64
		createdAt time.Time
	)
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, subtotal, tax, total, status)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		spec.UserID, totals.Subtotal.StringFixed(2), totals.Tax.StringFixed(2),
		totals.Total.StringFixed(2), domain.StatusPending,
	).Scan(&orderID, &createdAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = orderID
		err := tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, subtotal)
			 VALUES ($1,$2,$3,$4) RETURNING id`,
			orderID, items[i].ProductID, items[i].Quantity, items[i].Subtotal.StringFixed(2),
		).Scan(&items[i].ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit order tx: %w", err)
	}

	return domain.Order{
		ID:        orderID,
		UserID:    spec.UserID,
		Subtotal:  totals.Subtotal.Round(2),
		Tax:       totals.Tax,
		Total:     totals.Total,
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
		Items:     items,
	}, nil
}

func (r *Repository) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, subtotal::text, tax::text, total::text, status, created_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []domain.Order
		index  = map[int64]int{}
		ids    []int64
	)
	for rows.Next() {
		var (
			o                             domain.Order
			subtotalStr, taxStr, totalStr string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &subtotalStr, &taxStr, &totalStr, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.Subtotal, err = decimal.NewFromString(subtotalStr); err != nil {
			return nil, fmt.Errorf("parse order subtotal: %w", err)
		}
		if o.Tax, err = decimal.NewFromString(taxStr); err != nil {
			return nil, fmt.Errorf("parse order tax: %w", err)
		}
		if o.Total, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("parse order total: %w", err)
		}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.subtotal::text,
		        p.name, p.price::text, p.stock, COALESCE(p.image_url, '')
		 FROM order_items oi
		 JOIN products p ON p.id = oi.product_id
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			it                    domain.OrderItem
			p                     domain.Product
			subtotalStr, priceStr string
		)
		if err := itemRows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &subtotalStr,
			&p.Name, &priceStr, &p.Stock, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.Subtotal, err = decimal.NewFromString(subtotalStr); err != nil {
			return nil, fmt.Errorf("parse item subtotal: %w", err)
		}
		if p.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("parse product price: %w", err)
		}
		p.ID = it.ProductID
		it.Product = &p
		i := index[it.OrderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkProcessed advances an order pending -> processed. Re-running it for
// an order already processed is a no-op success, which is what makes
// at-least-once event delivery safe.
func (r *Repository) MarkProcessed(ctx context.Context, orderID int64) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		orderID, domain.StatusProcessed, domain.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check order %d: %w", orderID, err)
	}
	if !exists {
		return domain.Clientf("order %d not found", orderID)
	}
	return nil
}
