// Package app wires the configured backends into a ready retrieval service.
// Both binaries build their dependencies through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zgate/internal/channel"
	"github.com/zzenonn/zgate/internal/chunk"
	"github.com/zzenonn/zgate/internal/config"
	"github.com/zzenonn/zgate/internal/domain"
	"github.com/zzenonn/zgate/internal/gateway"
	"github.com/zzenonn/zgate/internal/policy"
	"github.com/zzenonn/zgate/internal/repository/db"
	"github.com/zzenonn/zgate/internal/repository/objectstore"
	"github.com/zzenonn/zgate/internal/retry"
	"github.com/zzenonn/zgate/internal/service"
)

type App struct {
	Config    *config.Config
	Retrieval *service.RetrievalService
	Fallback  *gateway.Fallback
	Origin    *url.URL

	closers []func() error
}

// Build creates the repositories, adapters and the retrieval service described by cfg.
func Build(cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	origin, err := cfg.Origin()
	if err != nil {
		return nil, err
	}
	a.Origin = origin

	metadataRepo, err := a.metadataRepository()
	if err != nil {
		return nil, err
	}

	factory := objectstore.NewObjectRepositoryFactory(cfg.AwsConfig, cfg.GcsClient)

	var bucket objectstore.BucketRepository
	if cfg.Bucket != nil {
		bucket, err = factory.CreateRepository(*cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket repository: %w", err)
		}
		log.Infof("Bucket store: %s://%s", bucket.GetStorageType(), bucket.GetBucketName())
	} else {
		log.Warn("No bucket configured, BucketStore files will fail")
	}

	// Bodies are streamed, so only the wait for response headers is bounded.
	streamClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.HTTPTimeout}).DialContext,
			ResponseHeaderTimeout: cfg.HTTPTimeout,
			MaxIdleConnsPerHost:   16,
		},
	}
	telegram := objectstore.NewTelegramRepository(streamClient, cfg.Telegram.APIBase, cfg.Telegram.BotToken)

	sources := func(token string) (chunk.Source, error) {
		bot, err := telegram.Bot(token)
		if err != nil {
			return nil, err
		}
		return bot, nil
	}
	bots := func(token string) (channel.MessageFile, error) {
		bot, err := telegram.Bot(token)
		if err != nil {
			return nil, err
		}
		return bot, nil
	}
	s3Open := func(loc domain.S3Location) (channel.S3Object, error) {
		repo, err := factory.ForS3Location(loc)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	chunkPolicy := retry.Policy{MaxAttempts: cfg.Chunk.MaxAttempts, BaseDelay: cfg.Chunk.Backoff}
	adapters := service.Adapters{
		Bucket: channel.NewBucketAdapter(bucket),
		S3:     channel.NewS3Adapter(s3Open),
		Chunked: channel.NewChunkedAdapter(
			sources,
			chunkPolicy,
			cfg.Chunk.PrefetchWindow,
			channel.NewMessageAdapter(bots, channel.MessageProxy),
		),
		External: channel.ExternalAdapter{},
	}

	a.Retrieval = service.NewRetrievalService(metadataRepo, a.policySource(), adapters, origin, nil)

	fallbackBase := cfg.FallbackBaseURL
	if fallbackBase == "" && origin != nil {
		fallbackBase = origin.String()
	}
	a.Fallback = gateway.NewFallback(fallbackBase, &http.Client{Timeout: cfg.HTTPTimeout})

	return a, nil
}

func (a *App) metadataRepository() (service.MetadataRepository, error) {
	cfg := a.Config
	switch cfg.MetadataBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		repo := db.NewRedisMetadataRepository(client)
		log.Infof("Metadata store: redis %s", cfg.Redis.Addr)
		return &repo, nil
	case "dynamodb":
		repo := db.NewMetadataRepository(dynamodb.NewFromConfig(cfg.AwsConfig), cfg.DynamoDBTable)
		log.Infof("Metadata store: dynamodb table %s", cfg.DynamoDBTable)
		return &repo, nil
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.MetadataBackend)
	}
}

func (a *App) policySource() policy.Source {
	access := a.Config.Access
	static := policy.NewStaticSource(access.AllowedDomains, access.WhiteListMode)
	if access.SSMParameter == "" {
		return static
	}

	fallback, _ := static.Policy(context.Background())
	log.Infof("Access policy: ssm parameter %s", access.SSMParameter)
	return policy.NewSSMSource(ssm.NewFromConfig(a.Config.AwsConfig), access.SSMParameter, access.RefreshInterval, fallback)
}

// Close releases the clients opened by Build.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	if a.Config.GcsClient != nil {
		errs = append(errs, a.Config.GcsClient.Close())
	}
	return errors.Join(errs...)
}
