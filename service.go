// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/openai"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/pipeline"
	"github.com/poiesic/docflow/ratelimit"
	"github.com/poiesic/docflow/search"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/poiesic/docflow/webhook"
)

const shutdownDrainTimeout = 30 * time.Second

// Service wires the whole pipeline together: the embedded store, the
// AI provider, admission control, both worker stages and the webhook
// dispatcher. It is the single assembly point used by the command-line
// entrypoint and by end-to-end tests.
type Service struct {
	backend    *badger.Backend
	queueRepo  storage.QueueRepository
	jobRepo    storage.JobRepository
	rateRepo   storage.RateLimitRepository
	pointRepo  storage.PointRepository
	provider   ai.AIProvider
	limiter    *ratelimit.Limiter
	dispatcher *webhook.Dispatcher
	producer   *pipeline.Producer

	extractionRunner *pipeline.Runner
	storageRunner    *pipeline.Runner

	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider ai.AIProvider
}

// WithProvider injects a pre-built AI provider instead of constructing
// the OpenAI-compatible one from configuration. Used by tests.
func WithProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// NewService builds the full pipeline from configuration. Workers are
// created but not started; call Start to begin consuming queues.
func NewService(cfg config.Config, opts ...ServiceOption) (*Service, error) {
	options := &serviceOptions{}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(cfg.Path, cfg.InMemory)
	if err != nil {
		return nil, err
	}

	queueRepo, err := badger.NewQueueRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	jobRepo := badger.NewJobRepository(backend, badger.WithRetention(cfg.JobRetention))
	rateRepo := badger.NewRateLimitRepository(backend)
	pointRepo := badger.NewPointRepository(backend)

	provider := options.provider
	if provider == nil {
		aiCfg := ai.NewConfig(
			ai.WithEmbeddingHost(cfg.EmbeddingHost),
			ai.WithEmbeddingModel(cfg.EmbeddingModel),
			ai.WithExtractionHost(cfg.ExtractionHost),
			ai.WithExtractionModel(cfg.ExtractionModel),
			ai.WithToken(cfg.Token),
		)
		provider, err = openai.NewProvider(aiCfg)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	limiter := ratelimit.NewLimiter(rateRepo, ratelimit.WithRules(map[string]ratelimit.Rule{
		pipeline.SubmitAction: {Limit: cfg.SubmitPerHour, Window: time.Hour},
		"status":              {Limit: cfg.StatusPerHour, Window: time.Hour},
		"search":              {Limit: cfg.SearchPerHour, Window: time.Hour},
	}))

	dispatcher := webhook.NewDispatcher(cfg.Secret, webhook.WithTimeout(cfg.Timeout))

	producer, err := pipeline.NewProducer(queueRepo, jobRepo, limiter)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	extractionWorker, err := pipeline.NewExtractionWorker(
		queueRepo, jobRepo, provider.Extractor(), dispatcher,
		pipeline.WithExtractionRetries(cfg.ExtractionRetries, cfg.RetryBaseDelay),
	)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}
	storageWorker, err := pipeline.NewStorageWorker(jobRepo, pointRepo, provider.Embedder(), dispatcher)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}

	extractionRunner, err := pipeline.NewRunner(
		queueRepo, pipeline.ExtractionQueue, extractionWorker.Handle,
		pipeline.WithPoolSize(cfg.ExtractionPoolSize),
	)
	if err != nil {
		provider.Close()
		backend.Close()
		return nil, err
	}
	storageRunner, err := pipeline.NewRunner(
		queueRepo, pipeline.StorageQueue, storageWorker.Handle,
		pipeline.WithPoolSize(cfg.StoragePoolSize),
	)
	if err != nil {
		extractionRunner.Stop(0)
		provider.Close()
		backend.Close()
		return nil, err
	}

	return &Service{
		backend:          backend,
		queueRepo:        queueRepo,
		jobRepo:          jobRepo,
		rateRepo:         rateRepo,
		pointRepo:        pointRepo,
		provider:         provider,
		limiter:          limiter,
		dispatcher:       dispatcher,
		producer:         producer,
		extractionRunner: extractionRunner,
		storageRunner:    storageRunner,
		logger:           slog.Default().With("component", "service"),
	}, nil
}

// Start launches both worker stages.
func (s *Service) Start(ctx context.Context) {
	s.extractionRunner.Start(ctx)
	s.storageRunner.Start(ctx)
	s.logger.Info("pipeline workers started")
}

// Close stops the workers, then the provider, then the store. In-flight
// handlers get a drain window so claimed tasks finish rather than being
// redelivered on the next start.
func (s *Service) Close() error {
	s.extractionRunner.Stop(shutdownDrainTimeout)
	s.storageRunner.Stop(shutdownDrainTimeout)

	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}

	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Producer returns the submission entrypoint.
func (s *Service) Producer() *pipeline.Producer {
	return s.producer
}

// JobRepository returns the job status store.
func (s *Service) JobRepository() storage.JobRepository {
	return s.jobRepo
}

// PointRepository returns the vector point store.
func (s *Service) PointRepository() storage.PointRepository {
	return s.pointRepo
}

// Limiter returns the shared admission limiter.
func (s *Service) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// NewSearcher creates a searcher over the stored points.
func (s *Service) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(s.pointRepo, s.provider.Embedder(), opts...)
}
