package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/docflow/ai"
)

// MockExtractor is a test double for ai.DocumentExtractor.
// It allows custom behavior injection via function fields.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	// If nil, uses default deterministic behavior.
	ExtractFunc func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error)

	callCount int
}

// NewMockExtractor creates a mock extractor with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockExtractor().
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// Extract returns a small deterministic catalog derived from the source URL.
// Default behavior: two products and one service whose names embed the URL's
// last path segment, so repeated calls for the same document are identical.
func (m *MockExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
	m.callCount++

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}

	segment := req.SourceURL
	if idx := strings.LastIndex(segment, "/"); idx >= 0 {
		segment = segment[idx+1:]
	}
	if segment == "" {
		segment = "document"
	}

	result := &ai.ExtractionResult{
		RawContent: fmt.Sprintf("Extracted content of %s for industry %q.", req.SourceURL, req.Industry),
		Metadata:   map[string]any{"language": "en", "confidence": 0.9},
	}

	categories := req.TargetCategories
	if len(categories) == 0 {
		categories = ai.DefaultTargetCategories
	}
	for _, category := range categories {
		switch category {
		case "product":
			result.Products = append(result.Products,
				ai.ExtractedItem{
					Name:        segment + " widget",
					Description: "A widget described in " + segment,
					Attributes:  map[string]any{"sku": segment + "-001"},
				},
				ai.ExtractedItem{
					Name:        segment + " gadget",
					Description: "A gadget described in " + segment,
					Attributes:  map[string]any{"sku": segment + "-002"},
				})
		case "service":
			result.Services = append(result.Services,
				ai.ExtractedItem{
					Name:        segment + " maintenance",
					Description: "Maintenance service described in " + segment,
				})
		}
	}

	return result, nil
}

// CallCount returns the number of times Extract was called.
func (m *MockExtractor) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected function.
func (m *MockExtractor) Reset() {
	m.callCount = 0
	m.ExtractFunc = nil
}
