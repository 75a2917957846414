// Package dynamo writes sale audit records to a DynamoDB table.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsdynamo "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/CrisDiaz2402/shoplight-backend/internal/order/domain"
)

type Client interface {
	PutItem(ctx context.Context, params *awsdynamo.PutItemInput, optFns ...func(*awsdynamo.Options)) (*awsdynamo.PutItemOutput, error)
}

type Auditor struct {
	client Client
	table  string
}

func NewAuditor(client Client, table string) *Auditor {
	return &Auditor{client: client, table: table}
}

type auditItem struct {
	ID        string `dynamodbav:"id"`
	Kind      string `dynamodbav:"kind"`
	Timestamp string `dynamodbav:"timestamp"`
	UserID    int64  `dynamodbav:"userId"`
	OrderID   int64  `dynamodbav:"orderId"`
	Amount    string `dynamodbav:"amount"`
}

func (a *Auditor) Record(ctx context.Context, rec domain.AuditRecord) error {
	item, err := attributevalue.MarshalMap(auditItem{
		ID:        fmt.Sprintf("ORDER-%d-%d", rec.OrderID, time.Now().UnixMilli()),
		Kind:      "SALE_COMPLETED",
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
		UserID:    rec.UserID,
		OrderID:   rec.OrderID,
		Amount:    rec.Amount.StringFixed(2),
	})
	if err != nil {
		return fmt.Errorf("marshal audit item: %w", err)
	}
	_, err = a.client.PutItem(ctx, &awsdynamo.PutItemInput{
		TableName: aws.String(a.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamo put: %w", err)
	}
	return nil
}
