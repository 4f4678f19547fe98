package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// DefaultJobRetention is how long job records stay readable after their
// last write. Expiry is backed by badger's native entry TTL; no sweeper
// runs. A caller polling after expiry must treat "not found" as
// "unknown, assume the callback already fired or never will".
const DefaultJobRetention = 24 * time.Hour

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend   *Backend
	retention time.Duration
}

var _ storage.JobRepository = (*JobRepository)(nil)

// JobOption configures a JobRepository.
type JobOption func(*JobRepository)

// WithRetention overrides the record retention window.
func WithRetention(retention time.Duration) JobOption {
	return func(r *JobRepository) {
		if retention > 0 {
			r.retention = retention
		}
	}
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend, opts ...JobOption) storage.JobRepository {
	r := &JobRepository{
		backend:   backend,
		retention: DefaultJobRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create writes a new pending record for a job.
func (r *JobRepository) Create(ctx context.Context, jobID, ownerID string) (*core.JobStatus, error) {
	status := &core.JobStatus{
		JobID:     jobID,
		State:     core.JobPending,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeJobKey(jobID)
		_, err := tx.Get(key)
		if err == nil {
			return storage.ErrDuplicateKey
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := r.write(tx, key, status); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return status, nil
}

// Transition performs an atomic read-merge-write status update.
// The merge never replaces the whole record: later writers add their
// fields (completed_at, result) without erasing earlier ones (started_at).
func (r *JobRepository) Transition(ctx context.Context, jobID string, state core.JobState, fields *storage.JobFields) (*core.JobStatus, error) {
	if err := core.ValidateJobState(state); err != nil {
		return nil, err
	}

	var updated *core.JobStatus
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		key := makeJobKey(jobID)
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var status *core.JobStatus
		if err := item.Value(func(val []byte) error {
			status, err = storage.UnmarshalJobStatus(val)
			return err
		}); err != nil {
			return err
		}

		if err := checkForward(status.State, state); err != nil {
			return err
		}

		now := time.Now().UTC()
		status.State = state
		if state == core.JobProcessing && status.StartedAt == nil {
			status.StartedAt = &now
		}
		if state.Terminal() {
			status.CompletedAt = &now
		}
		if fields != nil {
			if fields.Result != nil {
				if status.Result == nil {
					status.Result = make(map[string]any, len(fields.Result))
				}
				for k, v := range fields.Result {
					status.Result[k] = v
				}
			}
			if fields.Error != "" {
				status.Error = fields.Error
			}
		}

		if err := r.write(tx, key, status); err != nil {
			return err
		}
		updated = status
		return tx.Commit()
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return updated, nil
}

// Get retrieves a job record.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*core.JobStatus, error) {
	var status *core.JobStatus
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeJobKey(jobID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			status, err = storage.UnmarshalJobStatus(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return status, nil
}

// write stores the record with the retention TTL. Every write refreshes
// the TTL: records keep expiring a full retention after their last mutation.
func (r *JobRepository) write(tx *badger.Txn, key []byte, status *core.JobStatus) error {
	value, err := storage.MarshalJobStatus(status)
	if err != nil {
		return err
	}
	entry := badger.NewEntry(key, value).WithTTL(r.retention)
	return tx.SetEntry(entry)
}

// checkForward enforces the forward-only lifecycle
// pending -> processing -> completed|failed.
func checkForward(from, to core.JobState) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}
	if from == core.JobProcessing && to == core.JobPending {
		return fmt.Errorf("%w: %s -> %s", core.ErrInvalidTransition, from, to)
	}
	return nil
}
