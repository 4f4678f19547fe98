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

// StorageWorker consumes stage-2 tasks: it embeds every extracted item,
// upserts it as a vector point, writes the terminal job status and
// dispatches the completion (or failure) webhook.
//
// Storage is per-item: partial success is possible and reported
// faithfully. A job with at least one stored item (or nothing to store)
// completes; it fails only when every item failed, which indicates the
// embedding or point store is down rather than bad items.
type StorageWorker struct {
	jobs       storage.JobRepository
	points     storage.PointRepository
	embedder   ai.Embedder
	dispatcher *webhook.Dispatcher
	logger     *slog.Logger
}

// NewStorageWorker creates the stage-2 task handler.
func NewStorageWorker(jobs storage.JobRepository, points storage.PointRepository, embedder ai.Embedder, dispatcher *webhook.Dispatcher) (*StorageWorker, error) {
	if jobs == nil {
		return nil, ErrJobsRequired
	}
	if points == nil {
		return nil, ErrPointsRequired
	}
	if embedder == nil {
		return nil, ErrProviderRequired
	}
	if dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	return &StorageWorker{
		jobs:       jobs,
		points:     points,
		embedder:   embedder,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "storage-worker"),
	}, nil
}

// Handle processes one claimed stage-2 payload.
func (w *StorageWorker) Handle(ctx context.Context, payload []byte) {
	task, err := UnmarshalStorageTask(payload)
	if err != nil {
		w.logger.Error("dropping corrupt stage-2 payload", "err", err)
		return
	}
	if task.OriginTaskID == "" {
		// The origin id is the authorization to mutate the job record;
		// without it the task cannot legitimately exist.
		w.logger.Error("dropping stage-2 task without origin id", "task", task.TaskID)
		return
	}
	logger := w.logger.With("job", task.OriginTaskID, "task", task.TaskID)
	defer func() {
		if v := recover(); v != nil {
			logger.Error("handler panic", "panic", v)
			w.fail(ctx, task, fmt.Sprintf("internal error: %v", v))
		}
	}()

	items := task.StructuredData.Items()
	stored, failed := 0, 0
	for _, item := range items {
		if err := w.storeItem(ctx, task, item); err != nil {
			logger.Warn("item not stored", "item", item.Name, "err", err)
			failed++
			continue
		}
		stored++
	}

	// Total failure with items present means the embedding or point
	// store is unreachable, not that the items were bad.
	if len(items) > 0 && stored == 0 {
		logger.Error("storage stage failed for all items", "items", len(items))
		w.fail(ctx, task, "vector storage unavailable: no items stored")
		return
	}

	result := map[string]any{
		"items_extracted": len(items),
		"items_stored":    stored,
		"items_failed":    failed,
		"storage_task_id": task.TaskID,
	}
	_, err = w.jobs.Transition(ctx, task.OriginTaskID, core.JobCompleted, &storage.JobFields{Result: result})
	if errors.Is(err, core.ErrInvalidTransition) {
		logger.Info("job already terminal, skipping redelivered task")
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("completed transition errored", "err", err)
	}

	envelope := &core.WebhookEnvelope{
		TaskID:    task.OriginTaskID,
		Status:    core.JobCompleted,
		Timestamp: time.Now().UTC(),
		CompanyID: task.CompanyID,
		Payload: core.CompletionPayload{
			StorageTaskID:  task.TaskID,
			RawContent:     task.RawContent,
			StructuredData: task.StructuredData,
			ItemsExtracted: len(items),
			ItemsStored:    stored,
			ItemsFailed:    failed,
		},
	}
	if err := w.dispatcher.Deliver(ctx, task.CallbackURL, envelope); err != nil {
		logger.Warn("completion webhook not delivered", "err", err)
	}
	logger.Info("storage complete", "stored", stored, "failed", failed)
}

// storeItem embeds one item and upserts it as a single point, recording
// the point identifier on the item.
func (w *StorageWorker) storeItem(ctx context.Context, task *core.StorageTask, item *core.CatalogItem) error {
	vector, err := w.embedder.EmbedText(ctx, item.EmbeddingText())
	if err != nil {
		return err
	}

	point := &core.Point{
		ID:         core.PointIDFor(task.TaskID, string(item.Category), item.Name),
		TaskID:     task.TaskID,
		CompanyID:  task.CompanyID,
		Category:   item.Category,
		Name:       item.Name,
		Vector:     vector,
		Attributes: item.Attributes,
	}
	if err := w.points.UpsertPoint(ctx, point); err != nil {
		return err
	}

	item.PointID = point.ID
	item.Stored = true
	return nil
}

// fail writes the terminal state and dispatches the failure envelope.
// Raw content already extracted rides along so the backend keeps that much.
func (w *StorageWorker) fail(ctx context.Context, task *core.StorageTask, reason string) {
	_, err := w.jobs.Transition(ctx, task.OriginTaskID, core.JobFailed, &storage.JobFields{Error: reason})
	if errors.Is(err, core.ErrInvalidTransition) {
		return
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.Error("failed transition errored", "job", task.OriginTaskID, "err", err)
	}

	envelope := &core.WebhookEnvelope{
		TaskID:    task.OriginTaskID,
		Status:    core.JobFailed,
		Timestamp: time.Now().UTC(),
		CompanyID: task.CompanyID,
		Payload: core.FailurePayload{
			StorageTaskID: task.TaskID,
			Stage:         "storage",
			Error:         reason,
			RawContent:    task.RawContent,
		},
	}
	if err := w.dispatcher.Deliver(ctx, task.CallbackURL, envelope); err != nil {
		w.logger.Warn("failure webhook not delivered", "job", task.OriginTaskID, "err", err)
	}
}
