package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process queue with the same delivery contract as the
// external one: at-least-once, per-message visibility window, explicit
// delete-on-success. A received message becomes invisible for the
// visibility timeout; if it is not deleted before that elapses it is
// delivered again with a fresh receipt handle.
type Memory struct {
	mu         sync.Mutex
	messages   []*memMessage
	visibility time.Duration
	wait       time.Duration
}

type memMessage struct {
	id             string
	body           []byte
	receipt        string
	invisibleUntil time.Time
}

func NewMemory(visibility, wait time.Duration) *Memory {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Memory{visibility: visibility, wait: wait}
}

func (q *Memory) Publish(ctx context.Context, body []byte) error {
	b := make([]byte, len(body))
	copy(b, body)
	q.mu.Lock()
	q.messages = append(q.messages, &memMessage{id: uuid.NewString(), body: b})
	q.mu.Unlock()
	return nil
}

// Receive returns at most one message, long-polling up to the configured
// wait. A nil message with a nil error means the queue was empty.
func (q *Memory) Receive(ctx context.Context) (*Message, error) {
	deadline := time.Now().Add(q.wait)
	for {
		if msg := q.takeVisible(); msg != nil {
			return msg, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *Memory) takeVisible() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, m := range q.messages {
		if now.Before(m.invisibleUntil) {
			continue
		}
		m.receipt = uuid.NewString()
		m.invisibleUntil = now.Add(q.visibility)
		return &Message{ID: m.id, Body: m.body, ReceiptHandle: m.receipt}
	}
	return nil
}

// Delete retires the message for the given receipt handle. A stale handle
// (the message was already redelivered or deleted) is a no-op, matching
// the external queue's behavior.
func (q *Memory) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Size reports how many messages remain, visible or not.
func (q *Memory) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
