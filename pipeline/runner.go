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


package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docflow/storage"
)

const defaultPollTimeout = 2 * time.Second

// Handler processes one dequeued payload. Handlers own their error
// handling end to end; the runner never sees a handler failure.
type Handler func(ctx context.Context, payload []byte)

// Runner pumps one queue into a bounded worker pool. Each dequeued
// payload runs on a pool goroutine so slow handlers never stall the
// claim loop for the rest of the pool.
type Runner struct {
	queue       storage.QueueRepository
	queueName   string
	handler     Handler
	pool        *ants.Pool
	pollTimeout time.Duration
	logger      *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// WithPoolSize sets the worker pool size for concurrent handling.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) RunnerOption {
	return func(r *Runner) error {
		if size < 1 {
			size = 1
		}
		if r.pool != nil {
			r.pool.Release()
		}
		pool, err := newPool(size, r.logger)
		if err != nil {
			return err
		}
		r.pool = pool
		return nil
	}
}

// WithPollTimeout sets how long each dequeue waits before giving the
// loop a chance to observe shutdown.
func WithPollTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) error {
		if timeout > 0 {
			r.pollTimeout = timeout
		}
		return nil
	}
}

// WithRunnerLogger sets a custom logger.
// Default is slog.Default().
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "runner", "queue", r.queueName)
		return nil
	}
}

func newPool(size int, logger *slog.Logger) (*ants.Pool, error) {
	return ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		logger.Error("handler panicked", "panic", v)
	}))
}

// NewRunner creates a runner for one queue.
func NewRunner(queue storage.QueueRepository, queueName string, handler Handler, opts ...RunnerOption) (*Runner, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	r := &Runner{
		queue:       queue,
		queueName:   queueName,
		handler:     handler,
		pollTimeout: defaultPollTimeout,
		logger:      slog.Default().With("component", "runner", "queue", queueName),
	}

	pool, err := newPool(poolSize, r.logger)
	if err != nil {
		return nil, err
	}
	r.pool = pool

	for _, opt := range opts {
		if optErr := opt(r); optErr != nil {
			r.pool.Release()
			return nil, optErr
		}
	}
	return r, nil
}

// Start launches the claim loop. It returns immediately; the loop runs
// until the context is cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("runner started", "poolSize", r.pool.Cap())
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := r.queue.Dequeue(ctx, r.queueName, r.pollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrQueueEmpty):
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case errors.Is(err, storage.ErrStorageClosed):
			r.logger.Info("store closed, runner exiting")
			return
		default:
			r.logger.Error("dequeue failed", "err", err)
			// A broken store would otherwise spin this loop hot.
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.pollTimeout):
			}
			continue
		}

		task := payload
		if submitErr := r.pool.Submit(func() {
			r.handler(ctx, task)
		}); submitErr != nil {
			r.logger.Error("pool submit failed, handling inline", "err", submitErr)
			r.handler(ctx, task)
		}
	}
}

// Stop halts the claim loop and waits for in-flight handlers to drain,
// up to the given timeout. The runner should not be used after Stop.
func (r *Runner) Stop(timeout time.Duration) {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	if err := r.pool.ReleaseTimeout(timeout); err != nil {
		r.logger.Warn("pool did not drain before timeout", "err", err)
	}
}
