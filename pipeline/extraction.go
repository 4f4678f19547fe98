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
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/webhook"
)

const (
	defaultExtractionRetries = 3
	defaultRetryDelay        = 2 * time.Second
)

// ExtractionWorker consumes stage-1 tasks, invokes the document
// extractor and hands successful results to the storage stage.
type ExtractionWorker struct {
	queue      storage.QueueRepository
	jobs       storage.JobRepository
	extractor  ai.DocumentExtractor
	dispatcher *webhook.Dispatcher
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// ExtractionOption configures an ExtractionWorker.
type ExtractionOption func(*ExtractionWorker)

// WithExtractionRetries bounds retry attempts for transient extractor
// failures. Structural failures never retry regardless of this setting.
func WithExtractionRetries(attempts int, baseDelay time.Duration) ExtractionOption {
	return func(w *ExtractionWorker) {
		if attempts > 0 {
			w.maxRetries = attempts
		}
		if baseDelay > 0 {
			w.retryDelay = baseDelay
		}
	}
}

// NewExtractionWorker creates the stage-1 task handler.
func NewExtractionWorker(queue storage.QueueRepository, jobs storage.JobRepository, extractor ai.DocumentExtractor, dispatcher *webhook.Dispatcher, opts ...ExtractionOption) (*ExtractionWorker, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if jobs == nil {
		return nil, ErrJobsRequired
	}
	if extractor == nil {
		return nil, ErrProviderRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}

	w := &ExtractionWorker{
		queue:      queue,
		jobs:       jobs,
		extractor:  extractor,
		dispatcher: dispatcher,
		maxRetries: defaultExtractionRetries,
		retryDelay: defaultRetryDelay,
		logger:     slog.Default().With("component", "extraction-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Handle processes one claimed stage-1 payload. It always leaves the job
// in a defined state: processing (handed off), or failed with a webhook.
func (w *ExtractionWorker) Handle(ctx context.Context, payload []byte) {
	task, err := UnmarshalExtractionTask(payload)
	if err != nil {
		// No reliable callback URL exists for a corrupt payload; log only.
		w.logger.Error("dropping corrupt stage-1 payload", "err", err)
		return
	}
	logger := w.logger.With("job", task.TaskID)
	defer func() {
		if v := recover(); v != nil {
			logger.Error("handler panic", "panic", v)
			w.fail(ctx, task, fmt.Sprintf("internal error: %v", v), "")
		}
	}()

	if !w.claim(ctx, task.TaskID, logger) {
		return
	}

	var result *ai.ExtractionResult
	err = RetryWithBackoff(ctx, func() error {
		var extractErr error
		result, extractErr = w.extractor.Extract(ctx, ai.ExtractionRequest{
			SourceURL:        task.SourceURL,
			Industry:         task.Industry,
			TargetCategories: task.TargetCategories,
			FileMetadata:     task.FileMetadata,
		})
		return extractErr
	}, w.maxRetries, w.retryDelay, func(err error) bool {
		return !ai.IsStructural(err)
	})
	if err != nil {
		logger.Error("extraction failed", "source", task.SourceURL,
			"structural", ai.IsStructural(err), "err", err)
		w.fail(ctx, task, err.Error(), "")
		return
	}

	next := &core.StorageTask{
		TaskID:       core.NewTaskID(),
		OriginTaskID: task.TaskID,
		CompanyID:    task.CompanyID,
		StructuredData: core.StructuredData{
			Products: convertExtracted(result.Products, core.CategoryProduct),
			Services: convertExtracted(result.Services, core.CategoryService),
		},
		RawContent:         result.RawContent,
		ExtractionMetadata: result.Metadata,
		CallbackURL:        task.CallbackURL,
		CreatedAt:          time.Now().UTC(),
	}

	nextPayload, err := MarshalStorageTask(next)
	if err != nil {
		logger.Error("marshal storage task failed", "err", err)
		w.fail(ctx, task, "internal error building storage task", result.RawContent)
		return
	}

	if err := w.queue.Enqueue(ctx, StorageQueue, nextPayload); err != nil {
		logger.Error("stage-2 enqueue failed", "err", err)
		w.fail(ctx, task, "storage stage unavailable: "+err.Error(), result.RawContent)
		return
	}

	// Ownership passes to the storage worker with the enqueue; the job
	// stays processing and is completed (or failed) by stage 2 only.
	logger.Info("extraction complete, handed off to storage",
		"storageTask", next.TaskID,
		"products", len(next.StructuredData.Products),
		"services", len(next.StructuredData.Services))
}

// claim moves the job to processing. A transition refused because the
// job is already terminal means a duplicate delivery; skip the task.
func (w *ExtractionWorker) claim(ctx context.Context, jobID string, logger *slog.Logger) bool {
	_, err := w.jobs.Transition(ctx, jobID, core.JobProcessing, nil)
	switch {
	case err == nil:
		return true
	case errors.Is(err, core.ErrInvalidTransition):
		logger.Info("job already terminal, skipping redelivered task")
		return false
	case errors.Is(err, storage.ErrNotFound):
		// Record expired or was never created; the work is still owed.
		logger.Warn("job record missing at claim, continuing")
		return true
	default:
		logger.Error("claim transition failed", "err", err)
		return true
	}
}

// fail writes the terminal state and dispatches the failure envelope.
// Exactly one envelope is attempted per terminal transition.
func (w *ExtractionWorker) fail(ctx context.Context, task *core.ExtractionTask, reason, rawContent string) {
	_, err := w.jobs.Transition(ctx, task.TaskID, core.JobFailed, &storage.JobFields{Error: reason})
	if errors.Is(err, core.ErrInvalidTransition) {
		// Another delivery already finished this job; it owns the webhook.
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.Error("failed transition errored", "job", task.TaskID, "err", err)
	}

	envelope := &core.WebhookEnvelope{
		TaskID:    task.TaskID,
		Status:    core.JobFailed,
		Timestamp: time.Now().UTC(),
		CompanyID: task.CompanyID,
		Payload: core.FailurePayload{
			Stage:      "extraction",
			Error:      reason,
			RawContent: rawContent,
		},
	}
	if err := w.dispatcher.Deliver(ctx, task.CallbackURL, envelope); err != nil {
		w.logger.Warn("failure webhook not delivered", "job", task.TaskID, "err", err)
	}
}

func convertExtracted(items []ai.ExtractedItem, category core.Category) []core.CatalogItem {
	converted := make([]core.CatalogItem, 0, len(items))
	for _, it := range items {
		converted = append(converted, core.CatalogItem{
			Name:        it.Name,
			Category:    category,
			Description: it.Description,
			Content:     it.Content,
			Attributes:  it.Attributes,
		})
	}
	return converted
}
