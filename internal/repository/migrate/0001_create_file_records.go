package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	FileRecordsVersion = "20250901000000_file_records_table"

	// FileRecordsPartitionKey is the attribute holding the decoded file key.
	FileRecordsPartitionKey = "file_id"
)

// Migration is one reversible schema step.
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client *dynamodb.Client) error
	Down(ctx context.Context, client *dynamodb.Client) error
}

// CreateFileRecordsTable creates the table holding one item per stored file.
type CreateFileRecordsTable struct {
	Table string
}

func (m *CreateFileRecordsTable) Version() string {
	return FileRecordsVersion
}

func (m *CreateFileRecordsTable) TableName() string {
	return m.Table
}

func (m *CreateFileRecordsTable) Up(ctx context.Context, client *dynamodb.Client) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String(FileRecordsPartitionKey),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String(FileRecordsPartitionKey),
				KeyType:       types.KeyTypeHash,
			},
		},
		TableName:   aws.String(m.Table),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("FileGatewayMetadata"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.Table),
	}, 5*time.Minute)
}

func (m *CreateFileRecordsTable) Down(ctx context.Context, client *dynamodb.Client) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(m.Table),
	})
	return err
}

// All returns the migrations for a table, oldest first.
func All(table string) []Migration {
	return []Migration{
		&CreateFileRecordsTable{Table: table},
	}
}
