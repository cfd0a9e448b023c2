package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	zerrors "github.com/zzenonn/zgate/internal/errors"
	"github.com/zzenonn/zgate/internal/repository/objectstore"
)

// RedisConfig holds the Redis metadata store connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelegramConfig holds the message store API settings
type TelegramConfig struct {
	APIBase  string `yaml:"api_base"`
	BotToken string `yaml:"bot_token"`
}

// AccessConfig holds the access policy source settings. AllowedDomains and
// WhiteListMode are used directly unless SSMParameter names a parameter.
type AccessConfig struct {
	AllowedDomains  string        `yaml:"allowed_domains"`
	WhiteListMode   bool          `yaml:"white_list_mode"`
	SSMParameter    string        `yaml:"ssm_parameter"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ChunkConfig holds the chunk reconstruction tuning
type ChunkConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	PrefetchWindow int           `yaml:"prefetch_window"`
}

// Config holds the application configuration
type Config struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ListenAddr    string `yaml:"listen_addr"`
	GatewayOrigin string `yaml:"gateway_origin"`
	// AwsConfig: AWS SDK uses a shared configuration object that contains
	// credentials, region, retry policies, etc. DynamoDB, SSM and the
	// gateway bucket on S3 are created from this single config.
	AwsConfig aws.Config
	// GcsClient is only created when the gateway bucket lives on GCS.
	GcsClient       *storage.Client
	Bucket          *objectstore.BucketConfig
	MetadataBackend string `yaml:"metadata_backend"`
	DynamoDBTable   string `yaml:"dynamodb_table"`
	Redis           RedisConfig
	Telegram        TelegramConfig
	Access          AccessConfig
	Chunk           ChunkConfig
	FallbackBaseURL string        `yaml:"fallback_base_url"`
	HTTPTimeout     time.Duration `yaml:"http_timeout"`
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	if err := setupViper(configPath, rootCmd); err != nil {
		return nil, err
	}

	cfg, err := fromViper()
	if err != nil {
		return nil, err
	}

	cfg.AwsConfig, err = loadAWSConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Bucket != nil && cfg.Bucket.Type == objectstore.GCSType {
		cfg.GcsClient, err = loadGCSClient()
		if err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Origin returns the configured public origin, or nil when it should be
// derived from each request.
func (c *Config) Origin() (*url.URL, error) {
	if c.GatewayOrigin == "" {
		return nil, nil
	}
	u, err := url.Parse(c.GatewayOrigin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway_origin %q", c.GatewayOrigin)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(configPath string, rootCmd *cobra.Command) error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	setDefaults()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if rootCmd != nil {
		if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
			return fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("gateway_origin", "")
	viper.SetDefault("metadata.backend", "dynamodb")
	viper.SetDefault("dynamodb_table", "file_records")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("gcs_bucket", "")
	viper.SetDefault("telegram.api_base", objectstore.DefaultTelegramAPIBase)
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("access.allowed_domains", "")
	viper.SetDefault("access.white_list_mode", false)
	viper.SetDefault("access.ssm_parameter", "")
	viper.SetDefault("access.refresh_interval", time.Minute)
	viper.SetDefault("chunk.max_attempts", 3)
	viper.SetDefault("chunk.backoff", 500*time.Millisecond)
	viper.SetDefault("chunk.prefetch_window", 1)
	viper.SetDefault("fallback.base_url", "")
	viper.SetDefault("http.timeout", 30*time.Second)
}

// fromViper builds a Config from the loaded Viper state
func fromViper() (*Config, error) {
	cfg := &Config{
		LogLevel:        viper.GetString("log_level"),
		LogFormat:       viper.GetString("log_format"),
		ListenAddr:      viper.GetString("listen_addr"),
		GatewayOrigin:   viper.GetString("gateway_origin"),
		MetadataBackend: strings.ToLower(viper.GetString("metadata.backend")),
		DynamoDBTable:   viper.GetString("dynamodb_table"),
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Telegram: TelegramConfig{
			APIBase:  viper.GetString("telegram.api_base"),
			BotToken: viper.GetString("telegram.bot_token"),
		},
		Access: AccessConfig{
			AllowedDomains:  viper.GetString("access.allowed_domains"),
			WhiteListMode:   viper.GetBool("access.white_list_mode"),
			SSMParameter:    viper.GetString("access.ssm_parameter"),
			RefreshInterval: viper.GetDuration("access.refresh_interval"),
		},
		Chunk: ChunkConfig{
			MaxAttempts:    viper.GetInt("chunk.max_attempts"),
			Backoff:        viper.GetDuration("chunk.backoff"),
			PrefetchWindow: viper.GetInt("chunk.prefetch_window"),
		},
		FallbackBaseURL: viper.GetString("fallback.base_url"),
		HTTPTimeout:     viper.GetDuration("http.timeout"),
	}

	switch cfg.MetadataBackend {
	case "dynamodb":
		if cfg.DynamoDBTable == "" {
			return nil, zerrors.ConfigNotSetError("dynamodb_table")
		}
	case "redis":
		if cfg.Redis.Addr == "" {
			return nil, zerrors.ConfigNotSetError("redis.addr")
		}
	default:
		return nil, fmt.Errorf("unsupported metadata backend: %s", cfg.MetadataBackend)
	}

	if bucket := viper.GetString("gcs_bucket"); bucket != "" {
		bc, err := objectstore.ParseBucketConfig(bucket)
		if err != nil {
			return nil, fmt.Errorf("invalid gcs_bucket: %w", err)
		}
		cfg.Bucket = &bc
	}

	return cfg, nil
}

// loadAWSConfig loads AWS SDK configuration
func loadAWSConfig() (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config: %v", err)
	}
	return cfg, nil
}

// loadGCSClient loads Google Cloud Storage client
func loadGCSClient() (*storage.Client, error) {
	client, err := storage.NewClient(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to create GCS client: %v", err)
	}
	return client, nil
}
