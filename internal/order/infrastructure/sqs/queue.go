// Package sqs adapts the fulfillment queue contract to Amazon SQS.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/CrisDiaz2402/shoplight-backend/internal/queue"
)

type Client interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

type Queue struct {
	client   Client
	queueURL string
	wait     time.Duration
}

// NewQueue wraps an SQS client for one queue URL. wait bounds the long
// poll on receive; the visibility timeout itself is configured on the
// queue, not here.
func NewQueue(client Client, queueURL string, wait time.Duration) *Queue {
	return &Queue{client: client, queueURL: queueURL, wait: wait}
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// Receive requests at most one message. Nil message, nil error means the
// queue was empty within the long-poll window.
func (q *Queue) Receive(ctx context.Context) (*queue.Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(q.wait / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	m := out.Messages[0]
	return &queue.Message{
		ID:            aws.ToString(m.MessageId),
		Body:          []byte(aws.ToString(m.Body)),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
	}, nil
}

func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}
