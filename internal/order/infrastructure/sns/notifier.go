// Package sns publishes operational notifications to an SNS topic.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
)

type Client interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

type Notifier struct {
	client   Client
	topicARN string
}

func NewNotifier(client Client, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

func (n *Notifier) Notify(ctx context.Context, subject, message string) error {
	_, err := n.client.Publish(ctx, &awssns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
