package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type ServerCfg struct {
	Host string
	Port int
}

type StoreCfg struct {
	Path         string
	InMemory     bool
	JobRetention time.Duration
}

type AICfg struct {
	EmbeddingHost   string
	EmbeddingModel  string
	ExtractionHost  string
	ExtractionModel string
	Token           string
}

type WebhookCfg struct {
	Secret  string
	Timeout time.Duration
}

type PipelineCfg struct {
	ExtractionPoolSize int
	StoragePoolSize    int
	ExtractionRetries  int
	RetryBaseDelay     time.Duration
}

type RateLimitCfg struct {
	SubmitPerHour int
	StatusPerHour int
	SearchPerHour int
}

type Config struct {
	ServerCfg
	StoreCfg
	AICfg
	WebhookCfg
	PipelineCfg
	RateLimitCfg
}

type In struct {
	ServerHost string `env:"HOST, default=0.0.0.0"`
	ServerPort int    `env:"PORT, default=8080"`

	StorePath         string        `env:"STORE_PATH, default=./docflow-data"`
	StoreInMemory     bool          `env:"STORE_IN_MEMORY, default=false"`
	StoreJobRetention time.Duration `env:"JOB_RETENTION, default=24h"`

	AIEmbeddingHost   string `env:"EMBEDDING_HOST, default=http://localhost:11434"`
	AIEmbeddingModel  string `env:"EMBEDDING_MODEL, default=nomic-embed-text"`
	AIExtractionHost  string `env:"EXTRACTION_HOST, default=http://localhost:11434"`
	AIExtractionModel string `env:"EXTRACTION_MODEL, default=llama3.1"`
	AIToken           string `env:"AI_TOKEN"`

	WebhookSecret  string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT, default=10s"`

	ExtractionPoolSize int           `env:"EXTRACTION_POOL_SIZE, default=4"`
	StoragePoolSize    int           `env:"STORAGE_POOL_SIZE, default=4"`
	ExtractionRetries  int           `env:"EXTRACTION_RETRIES, default=3"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY, default=2s"`

	RateSubmitPerHour int `env:"RATE_SUBMIT_PER_HOUR, default=20"`
	RateStatusPerHour int `env:"RATE_STATUS_PER_HOUR, default=600"`
	RateSearchPerHour int `env:"RATE_SEARCH_PER_HOUR, default=120"`
}

func LoadCfg(ctx context.Context) (Config, error) {
	var input In

	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := envconfig.Process(c, &input); err != nil {
		return Config{}, err
	}

	if err := validate(input); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerCfg: ServerCfg{
			Host: input.ServerHost,
			Port: input.ServerPort,
		},
		StoreCfg: StoreCfg{
			Path:         input.StorePath,
			InMemory:     input.StoreInMemory,
			JobRetention: input.StoreJobRetention,
		},
		AICfg: AICfg{
			EmbeddingHost:   input.AIEmbeddingHost,
			EmbeddingModel:  input.AIEmbeddingModel,
			ExtractionHost:  input.AIExtractionHost,
			ExtractionModel: input.AIExtractionModel,
			Token:           input.AIToken,
		},
		WebhookCfg: WebhookCfg{
			Secret:  input.WebhookSecret,
			Timeout: input.WebhookTimeout,
		},
		PipelineCfg: PipelineCfg{
			ExtractionPoolSize: input.ExtractionPoolSize,
			StoragePoolSize:    input.StoragePoolSize,
			ExtractionRetries:  input.ExtractionRetries,
			RetryBaseDelay:     input.RetryBaseDelay,
		},
		RateLimitCfg: RateLimitCfg{
			SubmitPerHour: input.RateSubmitPerHour,
			StatusPerHour: input.RateStatusPerHour,
			SearchPerHour: input.RateSearchPerHour,
		},
	}

	return cfg, nil
}

func validate(cfg In) error {
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return fmt.Errorf("expected port to be between 1 and 65535 but received: %d", cfg.ServerPort)
	}

	if !cfg.StoreInMemory && cfg.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required when the store is not in-memory")
	}

	if cfg.StoreJobRetention < time.Minute {
		return fmt.Errorf("expected job retention of at least one minute but received: %s", cfg.StoreJobRetention)
	}

	if cfg.ExtractionPoolSize < 1 || cfg.StoragePoolSize < 1 {
		return fmt.Errorf("worker pool sizes must be at least 1")
	}

	if cfg.RateSubmitPerHour < 1 || cfg.RateStatusPerHour < 1 || cfg.RateSearchPerHour < 1 {
		return fmt.Errorf("rate limits must be at least 1 per hour")
	}

	return nil
}
