// Package db holds the metadata store adapters. The store itself is owned by
// the ingest pipeline; the gateway only reads from it.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
	"github.com/zzenonn/zgate/internal/repository/migrate"
)

// DynamoDBAPI is the part of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type recordItem struct {
	FileID   string                 `dynamodbav:"file_id"`
	Value    string                 `dynamodbav:"value,omitempty"`
	Metadata *domain.StoredMetadata `dynamodbav:"metadata"`
}

// MetadataRepository reads file records from DynamoDB.
type MetadataRepository struct {
	client    DynamoDBAPI
	tableName string
}

// NewMetadataRepository initializes a new MetadataRepository.
func NewMetadataRepository(client DynamoDBAPI, tableName string) MetadataRepository {
	return MetadataRepository{
		client:    client,
		tableName: tableName,
	}
}

// GetRecord retrieves the record stored under key.
func (repo *MetadataRepository) GetRecord(ctx context.Context, key string) (*domain.RawRecord, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key: map[string]types.AttributeValue{
			migrate.FileRecordsPartitionKey: &types.AttributeValueMemberS{Value: key},
		},
	}

	start := time.Now()
	result, err := repo.client.GetItem(ctx, input)
	metrics.RecordBackendOperation("dynamodb", "get_item", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if result.Item == nil {
		return nil, zerrors.ErrRecordNotFound
	}

	var item recordItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if item.Metadata == nil {
		return nil, zerrors.ErrRecordNotFound
	}

	return &domain.RawRecord{
		Value:    []byte(item.Value),
		Metadata: item.Metadata,
	}, nil
}

// PutRecord stores a record, replacing any existing one.
func (repo *MetadataRepository) PutRecord(ctx context.Context, key string, record domain.RawRecord) error {
	item, err := attributevalue.MarshalMap(recordItem{
		FileID:   key,
		Value:    string(record.Value),
		Metadata: record.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      item,
	}
	if _, err := repo.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}
