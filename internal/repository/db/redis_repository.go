package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zzenonn/zgate/internal/domain"
	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/metrics"
)

const (
	redisKeyPrefix     = "file:"
	redisMetadataField = "metadata"
	redisValueField    = "value"
)

// RedisMetadataRepository reads file records from Redis hashes. Each record
// lives under "file:<key>" with a JSON metadata field and a value field.
type RedisMetadataRepository struct {
	client redis.UniversalClient
}

func NewRedisMetadataRepository(client redis.UniversalClient) RedisMetadataRepository {
	return RedisMetadataRepository{client: client}
}

func (repo *RedisMetadataRepository) GetRecord(ctx context.Context, key string) (*domain.RawRecord, error) {
	start := time.Now()
	fields, err := repo.client.HMGet(ctx, redisKeyPrefix+key, redisMetadataField, redisValueField).Result()
	metrics.RecordBackendOperation("redis", "hmget", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	raw, ok := fields[0].(string)
	if !ok || raw == "" {
		return nil, zerrors.ErrRecordNotFound
	}

	var metadata domain.StoredMetadata
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	record := &domain.RawRecord{Metadata: &metadata}
	if value, ok := fields[1].(string); ok {
		record.Value = []byte(value)
	}
	return record, nil
}

func (repo *RedisMetadataRepository) PutRecord(ctx context.Context, key string, record domain.RawRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = repo.client.HSet(ctx, redisKeyPrefix+key,
		redisMetadataField, string(metadata),
		redisValueField, string(record.Value),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}
