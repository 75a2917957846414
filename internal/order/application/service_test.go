package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/application"
	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

// memStore mirrors the transactional store semantics in memory: the whole
// order either commits or leaves nothing behind, and the mutex gives the
// same check-then-decrement atomicity the row lock gives in postgres.
type memStore struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	orders   []domain.Order
	sales    []domain.SaleEntry
	nextID   int64
	failWith error
}

func newMemStore(products ...domain.Product) *memStore {
	s := &memStore{products: map[int64]*domain.Product{}}
	for i := range products {
		p := products[i]
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStore) CreateOrder(ctx context.Context, spec domain.NewOrderSpec) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return domain.Order{}, s.failWith
	}

	// Stage everything first so a failure at line k leaves no trace of
	// lines before k.
	stock := map[int64]int{}
	subtotal := decimal.Zero
	var items []domain.OrderItem
	var sales []domain.SaleEntry
	for _, line := range spec.Lines {
		p, ok := s.products[line.ProductID]
		if !ok {
			return domain.Order{}, domain.Clientf("product %d not found", line.ProductID)
		}
		avail, seen := stock[p.ID]
		if !seen {
			avail = p.Stock
		}
		if avail < line.Quantity {
			return domain.Order{}, domain.Clientf("insufficient stock for %q: available %d, requested %d",
				p.Name, avail, line.Quantity)
		}
		stock[p.ID] = avail - line.Quantity
		sub := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(sub)
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Subtotal:  sub.Round(2),
			Product:   &domain.Product{ID: p.ID, Name: p.Name, Price: p.Price, Stock: stock[p.ID]},
		})
		sales = append(sales, domain.SaleEntry{
			UserID: spec.UserID, ProductID: p.ID, Quantity: line.Quantity,
			Amount: sub, PaymentMethod: spec.PaymentMethod, PaymentDetails: spec.PaymentDetails,
		})
	}

	totals := domain.ComputeTotals(subtotal, spec.TaxRate)
	s.nextID++
	o := domain.Order{
		ID:        s.nextID,
		UserID:    spec.UserID,
		Subtotal:  totals.Subtotal.Round(2),
		Tax:       totals.Tax,
		Total:     totals.Total,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
		Items:     items,
	}
	for i := range o.Items {
		o.Items[i].OrderID = o.ID
	}

	for pid, rem := range stock {
		s.products[pid].Stock = rem
	}
	s.orders = append([]domain.Order{o}, s.orders...)
	s.sales = append(s.sales, sales...)
	return o, nil
}

func (s *memStore) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) stockOf(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

type memPublisher struct {
	mu     sync.Mutex
	bodies [][]byte
	err    error
}

func (p *memPublisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	return nil
}

type memNotifier struct {
	msgs []string
	err  error
}

func (n *memNotifier) Notify(ctx context.Context, subject, message string) error {
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, subject+": "+message)
	return nil
}

type memAuditor struct {
	recs []domain.AuditRecord
	err  error
}

func (a *memAuditor) Record(ctx context.Context, rec domain.AuditRecord) error {
	if a.err != nil {
		return a.err
	}
	a.recs = append(a.recs, rec)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func items(raw string) application.CreateOrderInput {
	return application.CreateOrderInput{Items: json.RawMessage(raw)}
}

func TestCreateOrderEndToEnd(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Wireless Mouse", Price: decimal.RequireFromString("10.00"), Stock: 5})
	pub := &memPublisher{}
	notif := &memNotifier{}
	aud := &memAuditor{}
	svc := application.NewService(testLogger(), store, pub, notif, aud, application.Config{LowStockThreshold: 5})

	in := application.CreateOrderInput{
		Items:         json.RawMessage(`[{"productId":1,"quantity":2}]`),
		PaymentMethod: "card",
	}
	order, err := svc.CreateOrder(context.Background(), 7, in)
	if err != nil {
		t.Fatal(err)
	}

	if order.Subtotal.StringFixed(2) != "20.00" {
		t.Errorf("subtotal: want 20.00, got %s", order.Subtotal)
	}
	if order.Tax.StringFixed(2) != "3.00" {
		t.Errorf("tax: want 3.00, got %s", order.Tax)
	}
	if order.Total.StringFixed(2) != "23.00" {
		t.Errorf("total: want 23.00, got %s", order.Total)
	}
	if order.Status != domain.StatusPending {
		t.Errorf("status: want pending, got %s", order.Status)
	}
	if got := store.stockOf(1); got != 3 {
		t.Errorf("stock: want 3, got %d", got)
	}
	if len(store.sales) != 1 || store.sales[0].Amount.StringFixed(2) != "20.00" {
		t.Errorf("want one ledger entry of 20.00, got %+v", store.sales)
	}
	if store.sales[0].PaymentMethod != "card" {
		t.Errorf("payment method: want card, got %s", store.sales[0].PaymentMethod)
	}

	if len(pub.bodies) != 1 {
		t.Fatalf("want one published event, got %d", len(pub.bodies))
	}
	var ev domain.OrderCreated
	if err := json.Unmarshal(pub.bodies[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Event != domain.EventOrderCreated || ev.OrderID != order.ID || ev.UserID != 7 {
		t.Errorf("bad event: %+v", ev)
	}

	if len(aud.recs) != 1 || aud.recs[0].Amount.StringFixed(2) != "23.00" {
		t.Errorf("want one audit record of 23.00, got %+v", aud.recs)
	}
	// stock fell to 3, below the threshold of 5
	if len(notif.msgs) != 1 || !strings.Contains(notif.msgs[0], "Wireless Mouse") {
		t.Errorf("want one low stock notification, got %v", notif.msgs)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	cases := []struct {
		name    string
		input   application.CreateOrderInput
		wantMsg string
	}{
		{"missing items", application.CreateOrderInput{}, "'items' is required"},
		{"items null", items(`null`), "'items' is required"},
		{"items not a list", items(`"abc"`), "'items' must be a list"},
		{"items empty", items(`[]`), "at least one product"},
		{"missing fields", items(`[{"productId":1,"quantity":1},{"productId":2}]`), "item 2 must include productId and quantity"},
		{"string productId", items(`[{"productId":"x","quantity":1}]`), "item 1 has an invalid productId"},
		{"fractional quantity", items(`[{"productId":1,"quantity":1.5}]`), "item 1 has an invalid quantity"},
		{"zero quantity", items(`[{"productId":1,"quantity":0}]`), "item 1 has an invalid quantity"},
		{"negative quantity", items(`[{"productId":1,"quantity":-2}]`), "item 1 has an invalid quantity"},
	}

	store := newMemStore(domain.Product{ID: 1, Name: "Hub", Price: decimal.RequireFromString("34.00"), Stock: 10})
	svc := application.NewService(testLogger(), store, &memPublisher{}, nil, nil, application.Config{})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), 1, tc.input)
			if err == nil {
				t.Fatal("want error")
			}
			if !domain.IsClientError(err) {
				t.Fatalf("want client error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("want message containing %q, got %q", tc.wantMsg, err.Error())
			}
		})
	}
	if got := store.stockOf(1); got != 10 {
		t.Errorf("stock changed on rejected requests: %d", got)
	}
}

func TestCreateOrderAtomicOnFailure(t *testing.T) {
	store := newMemStore(
		domain.Product{ID: 1, Name: "Mouse", Price: decimal.RequireFromString("10.00"), Stock: 5},
		domain.Product{ID: 2, Name: "Keyboard", Price: decimal.RequireFromString("89.50"), Stock: 1},
	)
	pub := &memPublisher{}
	svc := application.NewService(testLogger(), store, pub, nil, nil, application.Config{})

	// second line fails, first line must leave no trace
	_, err := svc.CreateOrder(context.Background(), 1,
		items(`[{"productId":1,"quantity":2},{"productId":99,"quantity":1}]`))
	if err == nil || !domain.IsClientError(err) {
		t.Fatalf("want client error, got %v", err)
	}
	if !strings.Contains(err.Error(), "product 99 not found") {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	_, err = svc.CreateOrder(context.Background(), 1,
		items(`[{"productId":1,"quantity":2},{"productId":2,"quantity":5}]`))
	if err == nil || !strings.Contains(err.Error(), "available 1, requested 5") {
		t.Fatalf("want insufficient stock detail, got %v", err)
	}

	if store.stockOf(1) != 5 || store.stockOf(2) != 1 {
		t.Errorf("stock changed on failed orders: %d, %d", store.stockOf(1), store.stockOf(2))
	}
	if len(store.orders) != 0 || len(store.sales) != 0 || len(pub.bodies) != 0 {
		t.Errorf("failed order left residue: %d orders, %d sales, %d events",
			len(store.orders), len(store.sales), len(pub.bodies))
	}
}

func TestCreateOrderDuplicateLines(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Hub", Price: decimal.RequireFromString("34.00"), Stock: 5})
	svc := application.NewService(testLogger(), store, &memPublisher{}, nil, nil, application.Config{})

	// each duplicate line decrements the running snapshot
	_, err := svc.CreateOrder(context.Background(), 1,
		items(`[{"productId":1,"quantity":3},{"productId":1,"quantity":3}]`))
	if err == nil || !strings.Contains(err.Error(), "available 2, requested 3") {
		t.Fatalf("want second line to see remaining stock, got %v", err)
	}
	if store.stockOf(1) != 5 {
		t.Fatalf("stock changed on failed order: %d", store.stockOf(1))
	}

	order, err := svc.CreateOrder(context.Background(), 1,
		items(`[{"productId":1,"quantity":2},{"productId":1,"quantity":2}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("want 2 item rows, got %d", len(order.Items))
	}
	if store.stockOf(1) != 1 {
		t.Fatalf("want stock 1, got %d", store.stockOf(1))
	}
}

func TestCreateOrderBestEffortSideEffects(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Hub", Price: decimal.RequireFromString("34.00"), Stock: 10})
	pub := &memPublisher{err: errors.New("queue down")}
	notif := &memNotifier{err: errors.New("sns down")}
	aud := &memAuditor{err: errors.New("dynamo down")}
	svc := application.NewService(testLogger(), store, pub, notif, aud, application.Config{LowStockThreshold: 100})

	order, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":1}]`))
	if err != nil {
		t.Fatalf("post-commit failures must not fail the order: %v", err)
	}
	if order.ID == 0 || store.stockOf(1) != 9 {
		t.Errorf("order not committed: id=%d stock=%d", order.ID, store.stockOf(1))
	}
}

func TestCreateOrderDefaultPaymentMethod(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Hub", Price: decimal.RequireFromString("34.00"), Stock: 10})
	svc := application.NewService(testLogger(), store, nil, nil, nil, application.Config{})

	if _, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":1}]`)); err != nil {
		t.Fatal(err)
	}
	if store.sales[0].PaymentMethod != "unknown" {
		t.Errorf("want default payment method, got %q", store.sales[0].PaymentMethod)
	}
}

func TestCreateOrderInfraErrorIsNotClientError(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("connection refused")
	svc := application.NewService(testLogger(), store, nil, nil, nil, application.Config{})

	_, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":1}]`))
	if err == nil || domain.IsClientError(err) {
		t.Fatalf("want infrastructure error, got %v", err)
	}
}

func TestCreateOrderConcurrentContention(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Monitor", Price: decimal.RequireFromString("219.99"), Stock: 4})
	svc := application.NewService(testLogger(), store, &memPublisher{}, nil, nil, application.Config{})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":4}]`))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, failed int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		failed++
		if !domain.IsClientError(err) || !strings.Contains(err.Error(), "insufficient stock") {
			t.Errorf("loser must get insufficient stock, got %v", err)
		}
	}
	if ok != 1 || failed != 1 {
		t.Fatalf("want exactly one winner, got ok=%d failed=%d", ok, failed)
	}
	if store.stockOf(1) != 0 {
		t.Fatalf("want final stock 0, got %d", store.stockOf(1))
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	store := newMemStore(domain.Product{ID: 1, Name: "Hub", Price: decimal.RequireFromString("34.00"), Stock: 10})
	svc := application.NewService(testLogger(), store, nil, nil, nil, application.Config{})

	first, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":1}]`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateOrder(context.Background(), 1, items(`[{"productId":1,"quantity":2}]`))
	if err != nil {
		t.Fatal(err)
	}

	orders, err := svc.ListOrders(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 || orders[0].ID != second.ID || orders[1].ID != first.ID {
		t.Fatalf("want newest first, got %+v", orders)
	}
	if orders[0].Items[0].Product == nil || orders[0].Items[0].Product.Name == "" {
		t.Error("items must carry product detail")
	}

	other, err := svc.ListOrders(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Fatalf("user 2 has no orders, got %d", len(other))
	}
}
