package badger

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// PointRepository implements storage.PointRepository for BadgerDB.
//
// Points are stored under their identifier with secondary index keys per
// task and per company backing the filtered delete operations.
type PointRepository struct {
	backend *Backend
}

var _ storage.PointRepository = (*PointRepository)(nil)

// NewPointRepository creates a new PointRepository.
func NewPointRepository(backend *Backend) storage.PointRepository {
	return &PointRepository{backend: backend}
}

// UpsertPoint inserts or replaces a point by its identifier.
func (r *PointRepository) UpsertPoint(ctx context.Context, point *core.Point) error {
	if point.ID == "" {
		return storage.ErrSerializationFailed
	}

	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		value, err := storage.MarshalPoint(point)
		if err != nil {
			return err
		}
		if err := tx.Set(makePointKey(point.ID), value); err != nil {
			return err
		}
		// Index values carry only the point id; the record is canonical.
		if err := tx.Set(makePointTaskKey(point.TaskID, point.ID), []byte(point.ID)); err != nil {
			return err
		}
		if err := tx.Set(makePointCompanyKey(point.CompanyID, point.ID), []byte(point.ID)); err != nil {
			return err
		}
		return tx.Commit()
	})
	return mapStoreErr(err)
}

// GetPoint retrieves a point by identifier.
func (r *PointRepository) GetPoint(ctx context.Context, id string) (*core.Point, error) {
	var point *core.Point
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePointKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			point, err = storage.UnmarshalPoint(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return point, nil
}

// DeletePoints removes points by identifier. Missing ids are ignored.
func (r *PointRepository) DeletePoints(ctx context.Context, ids ...string) error {
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := r.deleteOne(tx, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	return mapStoreErr(err)
}

// DeleteByTask removes every point stored for a task.
func (r *PointRepository) DeleteByTask(ctx context.Context, taskID string) (int, error) {
	return r.deleteByIndex(ctx, pointTaskPrefix+taskID+":")
}

// DeleteByCompany removes every point stored for a company.
func (r *PointRepository) DeleteByCompany(ctx context.Context, companyID string) (int, error) {
	return r.deleteByIndex(ctx, pointCompanyPrefix+companyID+":")
}

func (r *PointRepository) deleteByIndex(ctx context.Context, indexPrefix string) (int, error) {
	deleted := 0
	err := r.backend.WithConflictRetry(func(tx *badger.Txn) error {
		deleted = 0

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(indexPrefix)
		iter := tx.NewIterator(opts)

		var ids []string
		for iter.Rewind(); iter.Valid(); iter.Next() {
			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				iter.Close()
				return err
			}
			ids = append(ids, string(id))
		}
		iter.Close()

		for _, id := range ids {
			if err := r.deleteOne(tx, id); err != nil {
				return err
			}
			deleted++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return deleted, nil
}

// deleteOne removes a point record together with its index keys.
func (r *PointRepository) deleteOne(tx *badger.Txn, id string) error {
	item, err := tx.Get(makePointKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var point *core.Point
	if err := item.Value(func(val []byte) error {
		point, err = storage.UnmarshalPoint(val)
		return err
	}); err != nil {
		return err
	}

	if err := tx.Delete(makePointKey(id)); err != nil {
		return err
	}
	if err := tx.Delete(makePointTaskKey(point.TaskID, id)); err != nil {
		return err
	}
	return tx.Delete(makePointCompanyKey(point.CompanyID, id))
}

// FindSimilar finds points similar to the given vector.
func (r *PointRepository) FindSimilar(ctx context.Context, vector []float32, companyID string, minSimilarity float32, limit int) ([]*core.PointMatch, error) {
	var results []*core.PointMatch

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			// Index keys live under their own prefixes; everything under
			// pointPrefix is a record, but guard against stray keys anyway.
			if !strings.HasPrefix(string(item.Key()), pointPrefix) {
				continue
			}

			var point *core.Point
			err := item.Value(func(val []byte) error {
				var err error
				point, err = storage.UnmarshalPoint(val)
				return err
			})
			if err != nil {
				return err
			}
			if point == nil || len(point.Vector) == 0 {
				continue
			}
			if companyID != "" && point.CompanyID != companyID {
				continue
			}

			// Cosine similarity (dot product for normalized vectors)
			similarity := dotProduct(vector, point.Vector)
			if similarity >= minSimilarity {
				results = append(results, &core.PointMatch{
					Point: point,
					Score: similarity,
				})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.PointMatch) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// dotProduct computes the dot product of two vectors.
// Returns 0 when the dimensions differ.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
