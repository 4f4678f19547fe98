package storage

import (
	"context"
	"time"

	"github.com/poiesic/docflow/core"
)

// QueueRepository provides durable, named, FIFO work-item queues.
// Implementations must guarantee that a payload is delivered to at most
// one concurrently-running Dequeue call (claim semantics) and preserve
// enqueue order within one queue name. At-least-once delivery across
// restarts is acceptable; the pipeline is idempotent on task ids.
type QueueRepository interface {
	// Enqueue appends a payload to the named queue.
	// Returns ErrStorageClosed when the backing store cannot accept work.
	Enqueue(ctx context.Context, queue string, payload []byte) error

	// Dequeue atomically claims the oldest payload from the named queue.
	// Blocks up to timeout and returns ErrQueueEmpty when no work arrived;
	// it never fails on "no work available".
	Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)

	// Len returns the number of payloads currently queued.
	Len(ctx context.Context, queue string) (int, error)
}

// JobFields carries the optional fields merged into a job record during
// a transition. Nil/zero fields are left untouched.
type JobFields struct {
	Result map[string]any
	Error  string
}

// JobRepository stores job lifecycle records. It is the single source of
// truth for external status polling and is never recomputed from the queue.
type JobRepository interface {
	// Create writes a new pending record. Returns ErrDuplicateKey if the
	// job already exists.
	Create(ctx context.Context, jobID, ownerID string) (*core.JobStatus, error)

	// Transition performs an atomic read-merge-write status update.
	// Status only moves forward (pending -> processing -> completed|failed);
	// an attempt from a terminal state returns core.ErrInvalidTransition.
	// StartedAt is set on the first move to processing, CompletedAt on the
	// terminal move; earlier fields are never erased by later writers.
	Transition(ctx context.Context, jobID string, state core.JobState, fields *JobFields) (*core.JobStatus, error)

	// Get retrieves a job record. Returns ErrNotFound for unknown or
	// expired jobs.
	Get(ctx context.Context, jobID string) (*core.JobStatus, error)
}

// SlideDecision is the outcome of one sliding-window admission check.
type SlideDecision struct {
	Allowed    bool
	Count      int
	RetryAfter time.Duration
}

// RateLimitRepository maintains per-key ordered sets of attempt
// timestamps with continuous eviction of entries older than the window.
type RateLimitRepository interface {
	// Slide atomically evicts entries older than now-window, counts the
	// remainder and, if under limit, records now as consumed. Rejected
	// attempts are not recorded; RetryAfter reports the time until the
	// oldest surviving entry leaves the window.
	Slide(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (*SlideDecision, error)
}

// PointRepository stores embedding vectors as addressable points and
// supports the filtered deletes and similarity search used for
// reconciliation and re-ingestion.
type PointRepository interface {
	// UpsertPoint inserts or replaces a point by its identifier.
	UpsertPoint(ctx context.Context, point *core.Point) error

	// GetPoint retrieves a point by identifier. Returns ErrNotFound if absent.
	GetPoint(ctx context.Context, id string) (*core.Point, error)

	// DeletePoints removes points by identifier. Missing ids are ignored.
	DeletePoints(ctx context.Context, ids ...string) error

	// DeleteByTask removes every point stored for a task.
	DeleteByTask(ctx context.Context, taskID string) (int, error)

	// DeleteByCompany removes every point stored for a company.
	DeleteByCompany(ctx context.Context, companyID string) (int, error)

	// FindSimilar finds points similar to the given vector. companyID
	// filters to one company when non-empty. Results are ordered by
	// similarity score, highest first.
	FindSimilar(ctx context.Context, vector []float32, companyID string, minSimilarity float32, limit int) ([]*core.PointMatch, error)
}
