// Package fulfillment advances orders pending -> processed by consuming
// order-created events from the external queue. Delivery is at-least-once,
// so the status transition is idempotent and a message is only deleted
// after the transition is durably committed.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
	"github.com/CrisDiaz2402/shoplight-backend/internal/queue"
)

type Queue interface {
	// Receive returns at most one message; nil message with nil error
	// means the queue was empty within the long-poll window.
	Receive(ctx context.Context) (*queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type StatusStore interface {
	// MarkProcessed must be idempotent: re-running it for an already
	// processed order is a no-op success.
	MarkProcessed(ctx context.Context, orderID int64) error
}

// Deduper is an optional fast path that skips the fulfillment work on a
// redelivered event. Correctness never depends on it; the conditional
// status update is the real guard.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	OrderKey(orderID int64) string
}

type Config struct {
	// PollInterval separates consecutive queue polls.
	PollInterval time.Duration
	// ProcessingDelay stands in for the real logistics integration.
	ProcessingDelay time.Duration
}

type Worker struct {
	log    *slog.Logger
	queue  Queue
	store  StatusStore
	dedupe Deduper
	cfg    Config
	tracer trace.Tracer
}

func NewWorker(log *slog.Logger, q Queue, store StatusStore, dedupe Deduper, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 20 * time.Second
	}
	return &Worker{
		log:    log,
		queue:  q,
		store:  store,
		dedupe: dedupe,
		cfg:    cfg,
		tracer: otel.Tracer("fulfillment-worker"),
	}
}

// Run polls until ctx is canceled. A single message's failure is logged
// and left to queue-driven redelivery; it never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("fulfillment worker started", "poll_interval", w.cfg.PollInterval)
	t := time.NewTicker(w.cfg.PollInterval)
	defer t.Stop()

	for {
		w.pollOnce(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("fulfillment worker stopping")
			return nil
		case <-t.C:
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context) {
	msg, err := w.queue.Receive(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		w.log.Error("queue receive failed", "err", err)
		return
	}
	if msg == nil {
		// Empty poll, wait for the next tick.
		return
	}
	w.process(ctx, msg)
}

func (w *Worker) process(ctx context.Context, msg *queue.Message) {
	ctx, span := w.tracer.Start(ctx, "ProcessOrderCreated")
	defer span.End()

	var event domain.OrderCreated
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("malformed fulfillment event", "message_id", msg.ID, "err", err)
		return
	}
	if event.OrderID == 0 {
		w.log.Error("fulfillment event without orderId", "message_id", msg.ID)
		return
	}

	duplicate := false
	if w.dedupe != nil {
		seen, err := w.dedupe.Seen(ctx, w.dedupe.OrderKey(event.OrderID))
		if err != nil {
			w.log.Error("dedupe check failed", "order_id", event.OrderID, "err", err)
		} else if seen {
			w.log.Info("redelivered event, skipping fulfillment step", "order_id", event.OrderID)
			duplicate = true
		}
	}

	if !duplicate {
		// Simulated logistics latency. Interruptible so shutdown does
		// not hang on an in-flight message; the un-deleted message is
		// simply redelivered later.
		select {
		case <-ctx.Done():
			w.log.Info("shutdown during fulfillment, message left for redelivery", "order_id", event.OrderID)
			return
		case <-time.After(w.cfg.ProcessingDelay):
		}
	}

	// Once the fulfillment step is done, finish the commit and the ack
	// even if shutdown began meanwhile; aborting here would only force a
	// pointless redelivery.
	ctx = context.WithoutCancel(ctx)

	if err := w.store.MarkProcessed(ctx, event.OrderID); err != nil {
		w.log.Error("status update failed, message left for redelivery", "order_id", event.OrderID, "err", err)
		return
	}

	// Delete only after the status change is committed. A crash before
	// this point redelivers the message; MarkProcessed makes the re-run
	// harmless.
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.log.Error("message delete failed, redelivery will re-run idempotently", "order_id", event.OrderID, "err", err)
		return
	}
	w.log.Info("order fulfilled", "order_id", event.OrderID)
}
