package search

import (
	"context"
	"log/slog"
	"testing"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPoints(t *testing.T) storage.PointRepository {
	t.Helper()
	backend, err := badger.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return badger.NewPointRepository(backend)
}

func fixedEmbedder(vector []float32) *mock.MockEmbedder {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return vector, nil
	}
	return embedder
}

func TestNewSearcher(t *testing.T) {
	points := newTestPoints(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(points, embedder)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with custom logger", func(t *testing.T) {
		searcher, err := NewSearcher(points, embedder, WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(points, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil point repository", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrPointRepositoryRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(points, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestFind_EmptyQuery(t *testing.T) {
	searcher, err := NewSearcher(newTestPoints(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = searcher.Find(context.Background(), Query{Text: "   "})
	assert.Equal(t, ErrEmptyQuery, err)
}

func TestFind_EmptyStore(t *testing.T) {
	searcher, err := NewSearcher(newTestPoints(t), mock.NewMockEmbedder())
	require.NoError(t, err)

	results, err := searcher.Find(context.Background(), Query{Text: "industrial pumps"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFind_RanksBySimilarity(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	seed := []*core.Point{
		{
			ID:        "p1",
			TaskID:    "task-1",
			CompanyID: "acme",
			Category:  core.CategoryProduct,
			Name:      "centrifugal pump",
			Vector:    []float32{0.9, 0.1, 0.0},
		},
		{
			ID:        "p2",
			TaskID:    "task-1",
			CompanyID: "acme",
			Category:  core.CategoryProduct,
			Name:      "diaphragm pump",
			Vector:    []float32{0.8, 0.2, 0.0},
		},
		{
			ID:        "p3",
			TaskID:    "task-1",
			CompanyID: "acme",
			Category:  core.CategoryService,
			Name:      "catering",
			Vector:    []float32{0.0, 0.1, 0.9},
		},
	}
	for _, p := range seed {
		require.NoError(t, points.UpsertPoint(ctx, p))
	}

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "submersible equipment", CompanyID: "acme", MaxHits: 10})
	require.NoError(t, err)

	// The catering point falls below the similarity floor.
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].Point.ID)
	assert.Equal(t, "p2", results[1].Point.ID)
	for i := 0; i < len(results)-1; i++ {
		assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score)
	}
}

func TestFind_CategoryFilter(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "prod", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "welding torch",
		Vector: []float32{0.9, 0.1, 0.0},
	}))
	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "svc", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryService, Name: "welding repair",
		Vector: []float32{0.9, 0.1, 0.0},
	}))

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "welding", CompanyID: "acme", Category: core.CategoryService})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "svc", results[0].Point.ID)
}

func TestFind_CompanyIsolation(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "a", TaskID: "t1", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "drill",
		Vector: []float32{0.9, 0.1, 0.0},
	}))
	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "b", TaskID: "t2", CompanyID: "globex",
		Category: core.CategoryProduct, Name: "drill",
		Vector: []float32{0.9, 0.1, 0.0},
	}))

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "drill", CompanyID: "globex"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "globex", results[0].Point.CompanyID)
}

func TestFind_VerbatimBoost(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	// Identical vectors; only the verbatim boost can separate them.
	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "exact", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "stainless steel tank",
		Vector: []float32{0.9, 0.1, 0.0},
	}))
	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "other", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "copper pipe",
		Vector: []float32{0.9, 0.1, 0.0},
	}))

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "stainless steel tank", CompanyID: "acme"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "exact", results[0].Point.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestFind_AttributeTextCountsForVerbatimMatch(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "attr", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "tank",
		Vector:     []float32{0.9, 0.1, 0.0},
		Attributes: map[string]any{"material": "stainless steel"},
	}))

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "stainless steel tank", CompanyID: "acme"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	// dot({0.9,0.1,0}, itself) = 0.82, plus the 0.3 verbatim boost.
	assert.Greater(t, results[0].Score, float32(1.0))
}

func TestFind_MaxHits(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		require.NoError(t, points.UpsertPoint(ctx, &core.Point{
			ID: id, TaskID: "t", CompanyID: "acme",
			Category: core.CategoryProduct, Name: "widget " + id,
			Vector: []float32{0.9, 0.1, 0.0},
		}))
	}

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	results, err := searcher.Find(ctx, Query{Text: "widget", CompanyID: "acme", MaxHits: 5})
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestFindWithMonitor(t *testing.T) {
	points := newTestPoints(t)
	ctx := context.Background()

	require.NoError(t, points.UpsertPoint(ctx, &core.Point{
		ID: "m", TaskID: "t", CompanyID: "acme",
		Category: core.CategoryProduct, Name: "sensor",
		Vector: []float32{0.9, 0.1, 0.0},
	}))

	searcher, err := NewSearcher(points, fixedEmbedder([]float32{0.9, 0.1, 0.0}))
	require.NoError(t, err)

	monitor := &testMonitor{}
	results, err := searcher.FindWithMonitor(ctx, Query{Text: "sensor", CompanyID: "acme"}, monitor)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	assert.True(t, monitor.startCalled)
	assert.Equal(t, 3, monitor.dimensions)
	assert.True(t, monitor.finishCalled)
}

// testMonitor is a simple test implementation of Monitor
type testMonitor struct {
	startCalled  bool
	dimensions   int
	finishCalled bool
}

func (m *testMonitor) Start(query string) { m.startCalled = true }

func (m *testMonitor) AfterQueryEmbedding(dimensions int) { m.dimensions = dimensions }

func (m *testMonitor) AfterVectorSearch(matches []*core.PointMatch) {}

func (m *testMonitor) VerbatimHit(point *core.Point) {}

func (m *testMonitor) Finish(results []*Result) { m.finishCalled = true }
