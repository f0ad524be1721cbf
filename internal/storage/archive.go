// Package storage archives raw SES notification payloads to S3 with a
// DynamoDB index item per notification.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/ses-guard/internal/domain"
	"github.com/ignite/ses-guard/internal/events"
)

// S3API is the subset of the S3 client the archive uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// DynamoAPI is the subset of the DynamoDB client the archive uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// IndexItem is the DynamoDB record pointing at an archived payload.
type IndexItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	ID         string `dynamodbav:"ID"`
	MessageID  string `dynamodbav:"MessageID,omitempty"`
	Type       string `dynamodbav:"Type"`
	SubType    string `dynamodbav:"SubType"`
	Subject    string `dynamodbav:"Subject,omitempty"`
	ObjectKey  string `dynamodbav:"ObjectKey,omitempty"`
	ReceivedAt string `dynamodbav:"ReceivedAt"`
	TTL        int64  `dynamodbav:"TTL,omitempty"`
}

// Archive writes notifications to S3 and DynamoDB. Either side may be
// disabled by leaving its bucket or table empty.
type Archive struct {
	s3     S3API
	dynamo DynamoAPI
	bucket string
	table  string
	ttl    time.Duration
}

// NewArchive creates an archive over existing clients.
func NewArchive(s3Client S3API, dynamo DynamoAPI, bucket, table string, ttl time.Duration) *Archive {
	return &Archive{s3: s3Client, dynamo: dynamo, bucket: bucket, table: table, ttl: ttl}
}

// NewAWSArchive loads the default AWS config for region and builds the
// S3 and DynamoDB clients.
func NewAWSArchive(ctx context.Context, bucket, table, region string, ttl time.Duration) (*Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewArchive(s3.NewFromConfig(cfg), dynamodb.NewFromConfig(cfg), bucket, table, ttl), nil
}

// ObjectKey is the S3 key for n.
func ObjectKey(n domain.Notification) string {
	return fmt.Sprintf("notifications/%s/%s/%s.json",
		n.Type, n.ReceivedAt.UTC().Format("2006/01/02"), n.ID)
}

// Save archives one notification.
func (a *Archive) Save(ctx context.Context, n domain.Notification) error {
	var key string
	if a.bucket != "" && a.s3 != nil {
		key = ObjectKey(n)
		_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(n.RawPayload),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("putting object to S3: %w", err)
		}
	}

	if a.table == "" || a.dynamo == nil {
		return nil
	}
	item := IndexItem{
		PK:         "EMAIL#" + n.Email,
		SK:         n.ReceivedAt.UTC().Format(time.RFC3339Nano) + "#" + n.ID,
		ID:         n.ID,
		MessageID:  n.MessageID,
		Type:       string(n.Type),
		SubType:    n.SubType,
		Subject:    n.Subject,
		ObjectKey:  key,
		ReceivedAt: n.ReceivedAt.UTC().Format(time.RFC3339),
	}
	if a.ttl > 0 {
		item.TTL = n.ReceivedAt.Add(a.ttl).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	if _, err := a.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// Listener adapts the archive to the event dispatcher.
func (a *Archive) Listener() events.Listener {
	return events.ListenerFunc(func(ctx context.Context, e events.Event) error {
		return a.Save(ctx, e.Notification())
	})
}
