package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/ratelimit"
	"github.com/poiesic/docflow/storage"
)

// SubmitAction is the rate-limited action name for task submission.
const SubmitAction = "submit"

// Submission is an inbound task submission from the API boundary.
type Submission struct {
	SourceURL        string            `json:"source_url"`
	CompanyID        string            `json:"company_id"`
	Industry         string            `json:"industry,omitempty"`
	TargetCategories []string          `json:"target_categories,omitempty"`
	FileMetadata     map[string]string `json:"file_metadata,omitempty"`
	CallbackURL      string            `json:"callback_url,omitempty"`
}

// Producer admits submissions, enqueues the stage-1 task and creates the
// pending job record. The job id equals the extraction task id.
type Producer struct {
	queue   storage.QueueRepository
	jobs    storage.JobRepository
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewProducer creates a producer. The limiter may be nil when admission
// control is handled elsewhere (tests, internal re-submission).
func NewProducer(queue storage.QueueRepository, jobs storage.JobRepository, limiter *ratelimit.Limiter) (*Producer, error) {
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if jobs == nil {
		return nil, ErrJobsRequired
	}
	return &Producer{
		queue:   queue,
		jobs:    jobs,
		limiter: limiter,
		logger:  slog.Default().With("component", "producer"),
	}, nil
}

// Submit validates, admits and enqueues one submission.
//
// The enqueue happens before the status record is created: when the
// queue cannot accept work the caller gets core.ErrQueueUnavailable and
// no job record exists, so a failed submission leaves no trace to poll.
func (p *Producer) Submit(ctx context.Context, sub *Submission) (*core.JobStatus, error) {
	task := &core.ExtractionTask{
		TaskID:           core.NewTaskID(),
		CompanyID:        sub.CompanyID,
		SourceURL:        sub.SourceURL,
		Industry:         sub.Industry,
		TargetCategories: sub.TargetCategories,
		FileMetadata:     sub.FileMetadata,
		CallbackURL:      sub.CallbackURL,
		CreatedAt:        time.Now().UTC(),
	}
	if err := core.ValidateExtractionTask(task); err != nil {
		return nil, err
	}

	if p.limiter != nil {
		if err := p.limiter.Check(ctx, sub.CompanyID, SubmitAction); err != nil {
			return nil, err
		}
	}

	payload, err := MarshalExtractionTask(task)
	if err != nil {
		return nil, err
	}

	if err := p.queue.Enqueue(ctx, ExtractionQueue, payload); err != nil {
		p.logger.Error("enqueue failed", "company", sub.CompanyID, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrQueueUnavailable, err)
	}

	status, err := p.jobs.Create(ctx, task.TaskID, sub.CompanyID)
	if err != nil {
		// The task is already queued; tracking is degraded, not the work.
		p.logger.Error("job record creation failed after enqueue",
			"job", task.TaskID, "err", err)
		status = &core.JobStatus{
			JobID:     task.TaskID,
			State:     core.JobPending,
			OwnerID:   sub.CompanyID,
			CreatedAt: task.CreatedAt,
		}
	}

	p.logger.Info("task submitted",
		"job", task.TaskID, "company", sub.CompanyID, "source", sub.SourceURL)
	return status, nil
}
