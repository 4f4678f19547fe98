package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentExtractor extracts structured business data from an externally
// hosted document. Implementations must be thread-safe for concurrent use.
type DocumentExtractor interface {
	// Extract analyzes the document behind the request's source URL and
	// returns its raw textual content together with the products and
	// services it describes. Failures are reported as *ExtractError so
	// callers can distinguish transient from structural causes.
	Extract(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// AIProvider aggregates AI services for convenient initialization and
// lifecycle management. A provider creates and manages Embedder and
// DocumentExtractor instances, ensuring they share configuration.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Extractor returns the document extraction service.
	// The returned DocumentExtractor is safe for concurrent use.
	Extractor() DocumentExtractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
