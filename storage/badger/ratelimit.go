package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/storage"
)

// RateLimitRepository implements storage.RateLimitRepository for BadgerDB.
//
// Each key holds the ordered set of attempt timestamps inside the
// trailing window. The evict-count-append cycle runs in one transaction;
// concurrent sliders on the same key conflict and retry, which is the
// only coordination the limiter needs.
type RateLimitRepository struct {
	backend *Backend
}

var _ storage.RateLimitRepository = (*RateLimitRepository)(nil)

// NewRateLimitRepository creates a new RateLimitRepository.
func NewRateLimitRepository(backend *Backend) storage.RateLimitRepository {
	return &RateLimitRepository{backend: backend}
}

// Slide performs one sliding-window admission check. Rejected attempts
// are not recorded as consumed.
func (r *RateLimitRepository) Slide(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (*storage.SlideDecision, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var decision *storage.SlideDecision
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		storeKey := makeRateLimitKey(key)

		var entries []int64
		item, err := tx.Get(storeKey)
		if err == nil {
			if err := item.Value(func(val []byte) error {
				entries, err = storage.UnmarshalWindow(val)
				return err
			}); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		// Evict entries that fell out of the trailing window. Entries
		// are appended in order, so the survivors stay ordered.
		cutoff := now.Add(-window).UnixNano()
		kept := entries[:0]
		for _, ts := range entries {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}

		if len(kept) >= limit {
			oldest := time.Unix(0, kept[0])
			decision = &storage.SlideDecision{
				Allowed:    false,
				Count:      len(kept),
				RetryAfter: oldest.Add(window).Sub(now),
			}
		} else {
			kept = append(kept, now.UnixNano())
			decision = &storage.SlideDecision{
				Allowed: true,
				Count:   len(kept),
			}
		}

		value, err := storage.MarshalWindow(kept)
		if err != nil {
			return err
		}
		// The key is dead weight once the whole window has passed.
		entry := badger.NewEntry(storeKey, value).WithTTL(window)
		if err := tx.SetEntry(entry); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return decision, nil
}
