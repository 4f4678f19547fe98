package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// defaultMinSimilarity drops vector matches too weak to be meaningful
// before the verbatim boost is applied.
const defaultMinSimilarity = 0.60

// Result is one ranked search hit.
type Result struct {
	Point *core.Point `json:"point"`
	Score float32     `json:"score"`
}

// Query describes one search over stored catalog points.
type Query struct {
	// Text is the free-text query to embed and match. Required.
	Text string

	// CompanyID restricts results to one company when non-empty.
	CompanyID string

	// Category restricts results to products or services when non-empty.
	Category core.Category

	// MaxHits caps the number of results. Values below 1 mean 10.
	MaxHits int
}

// Searcher ranks stored catalog points against free-text queries.
type Searcher struct {
	points        storage.PointRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity overrides the similarity floor for vector matches.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(points storage.PointRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if points == nil {
		return nil, ErrPointRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		points:        points,
		embedder:      embedder,
		minSimilarity: defaultMinSimilarity,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Find ranks stored points against the query.
// Returns up to query.MaxHits results, highest score first.
func (s *Searcher) Find(ctx context.Context, query Query) ([]*Result, error) {
	return s.FindWithMonitor(ctx, query, nil)
}

// FindWithMonitor ranks stored points against the query with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) FindWithMonitor(ctx context.Context, query Query, monitor Monitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query.Text) == "" {
		return nil, ErrEmptyQuery
	}
	maxHits := query.MaxHits
	if maxHits < 1 {
		maxHits = 10
	}

	monitor.Start(query.Text)

	embedding, err := s.embedder.EmbedText(ctx, query.Text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query.Text, "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(embedding))

	// Over-fetch when a category filter applies so the post-filter can
	// still fill maxHits.
	fetch := maxHits
	if query.Category != "" {
		fetch *= 2
	}
	matches, err := s.points.FindSimilar(ctx, embedding, query.CompanyID, s.minSimilarity, fetch)
	if err != nil {
		s.logger.Error("error querying for similar points", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(matches)

	results := make([]*Result, 0, len(matches))
	for _, match := range matches {
		if query.Category != "" && match.Point.Category != query.Category {
			continue
		}

		score := match.Score
		if matchesAllTerms(pointText(match.Point), query.Text) {
			score += 0.3
			monitor.VerbatimHit(match.Point)
		}

		results = append(results, &Result{Point: match.Point, Score: score})
	}

	// The verbatim boost can reorder vector-ranked matches.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}

// pointText flattens the searchable text of a stored point: its name
// plus any string-valued attributes.
func pointText(p *core.Point) string {
	var b strings.Builder
	b.WriteString(p.Name)
	for _, v := range p.Attributes {
		if s, ok := v.(string); ok {
			b.WriteByte(' ')
			b.WriteString(s)
		}
	}
	return b.String()
}
