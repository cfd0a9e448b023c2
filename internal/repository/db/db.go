package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/repository/migrate"
)

type DynamoDb struct {
	Client *dynamodb.Client
	Table  string
}

func NewDatabase(awsConfig aws.Config, table string) (*DynamoDb, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table name is empty")
	}
	return &DynamoDb{
		Client: dynamodb.NewFromConfig(awsConfig),
		Table:  table,
	}, nil
}

// MigrateDb applies every migration. Tables that already exist are skipped.
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	for _, m := range migrate.All(d.Table) {
		log.Infof("Applying migration %s to %s", m.Version(), m.TableName())
		if err := m.Up(ctx, d.Client); err != nil {
			var inUse *types.ResourceInUseException
			if errors.As(err, &inUse) {
				log.Infof("Table %s already exists, skipping", m.TableName())
				continue
			}
			return fmt.Errorf("migration %s failed: %w", m.Version(), err)
		}
	}
	return nil
}

// MigrateDown rolls back every migration, newest first.
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	migrations := migrate.All(d.Table)
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		log.Infof("Rolling back migration %s on %s", m.Version(), m.TableName())
		if err := m.Down(ctx, d.Client); err != nil {
			var notFound *types.ResourceNotFoundException
			if errors.As(err, &notFound) {
				continue
			}
			return fmt.Errorf("rollback %s failed: %w", m.Version(), err)
		}
	}
	return nil
}
