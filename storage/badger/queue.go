package badger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/storage"
)

// dequeuePollInterval is how often a blocked Dequeue re-checks the queue.
const dequeuePollInterval = 50 * time.Millisecond

// QueueRepository implements storage.QueueRepository for BadgerDB.
//
// Items are stored under zero-padded sequence keys so lexicographic
// iteration yields FIFO order. A claim is an atomic read-and-delete of
// the head key inside one transaction; badger's conflict detection
// guarantees at most one concurrent claimer commits.
type QueueRepository struct {
	backend *Backend

	mu   sync.Mutex
	seqs map[string]*badger.Sequence
}

var _ storage.QueueRepository = (*QueueRepository)(nil)

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(backend *Backend) (storage.QueueRepository, error) {
	return &QueueRepository{
		backend: backend,
		seqs:    make(map[string]*badger.Sequence),
	}, nil
}

func (r *QueueRepository) sequence(queue string) (*badger.Sequence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq, ok := r.seqs[queue]; ok {
		return seq, nil
	}
	seq, err := r.backend.GetSequence(makeQueueSeqKey(queue))
	if err != nil {
		return nil, err
	}
	r.seqs[queue] = seq
	return seq, nil
}

// Close releases the per-queue sequences.
func (r *QueueRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, seq := range r.seqs {
		if err := seq.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.seqs = make(map[string]*badger.Sequence)
	return firstErr
}

// Enqueue appends a payload to the named queue.
func (r *QueueRepository) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	seq, err := r.sequence(queue)
	if err != nil {
		return mapStoreErr(err)
	}

	next, err := seq.Next()
	if err != nil {
		return mapStoreErr(err)
	}

	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeQueueItemKey(queue, next), payload); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return mapStoreErr(err)
}

// Dequeue atomically claims the oldest payload from the named queue,
// blocking up to timeout. Returns storage.ErrQueueEmpty on timeout.
func (r *QueueRepository) Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		payload, err := r.pop(queue)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, storage.ErrQueueEmpty) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, storage.ErrQueueEmpty
		}

		wait := dequeuePollInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// pop claims the head item of the queue in one transaction.
func (r *QueueRepository) pop(queue string) ([]byte, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var payload []byte
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeQueueItemPrefix(queue)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		if !iter.Valid() {
			return storage.ErrQueueEmpty
		}

		item := iter.Item()
		key := item.KeyCopy(nil)
		var err error
		payload, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		iter.Close()
		return tx.Commit()
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return payload, nil
}

// Len returns the number of payloads currently queued.
func (r *QueueRepository) Len(ctx context.Context, queue string) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeQueueItemPrefix(queue)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return count, nil
}

// mapStoreErr converts badger lifecycle errors into storage sentinels.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return storage.ErrStorageClosed
	}
	if errors.Is(err, badger.ErrConflict) {
		return storage.ErrConflictRetriesExhausted
	}
	return err
}
