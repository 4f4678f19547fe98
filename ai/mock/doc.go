// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder,
// ai.DocumentExtractor, and ai.AIProvider for use in unit tests. The mocks
// allow tests to run without external AI service dependencies and enable
// controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	embeddings, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	mockExtractor := mock.NewMockExtractor()
//	mockExtractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
//	    return nil, ai.NewStructuralError("unsupported_content")
//	}
//
//	// Check call counts
//	count := mockExtractor.CallCount()
//
// # Default Behavior
//
// The mock implementations provide sensible defaults:
//
//   - MockEmbedder: Returns deterministic vectors based on text hash
//   - MockExtractor: Returns a small deterministic catalog derived from the source URL
//   - MockProvider: Aggregates mock embedder and extractor
package mock
