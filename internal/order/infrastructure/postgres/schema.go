package postgres

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	price      NUMERIC(12,2) NOT NULL CHECK (price >= 0),
	stock      INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
	image_url  TEXT
);

CREATE TABLE IF NOT EXISTS orders (
	id         BIGSERIAL PRIMARY KEY,
	user_id    BIGINT NOT NULL,
	subtotal   NUMERIC(12,2) NOT NULL,
	tax        NUMERIC(12,2) NOT NULL,
	total      NUMERIC(12,2) NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS order_items (
	id         BIGSERIAL PRIMARY KEY,
	order_id   BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity   INTEGER NOT NULL CHECK (quantity > 0),
	subtotal   NUMERIC(12,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);

CREATE TABLE IF NOT EXISTS sales (
	id              BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL,
	product_id      BIGINT NOT NULL REFERENCES products(id),
	quantity        INTEGER NOT NULL CHECK (quantity > 0),
	amount          NUMERIC(12,2) NOT NULL,
	payment_method  TEXT NOT NULL DEFAULT 'unknown',
	payment_details JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the order store tables if they do not exist. Safe to run
// on every start.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SeedProducts inserts a small baseline catalog when the products table is
// empty, so a fresh local database is immediately usable.
func (r *Repository) SeedProducts(ctx context.Context) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (name, price, stock, image_url) VALUES
		('Wireless Mouse',       19.99, 50, ''),
		('Mechanical Keyboard',  89.50, 25, ''),
		('USB-C Hub',            34.00, 40, ''),
		('27" Monitor',         219.99, 10, '')
	`)
	if err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	r.log.Info("seeded baseline products")
	return nil
}
