// Package queue defines the message contract shared by the fulfillment
// queue implementations and provides an in-memory queue with SQS-style
// at-least-once, visibility-timeout semantics for local runs and tests.
package queue

// Message is one received queue message. ReceiptHandle identifies this
// particular delivery and is required to delete the message; it changes on
// every redelivery.
type Message struct {
	ID            string
	Body          []byte
	ReceiptHandle string
}
