package ai

// ExtractionRequest describes one document extraction call. It is a
// pass-through of the stage-1 task fields the inference provider needs.
type ExtractionRequest struct {
	// SourceURL is the externally hosted document to extract from.
	SourceURL string

	// Industry gives the provider domain context for attribute naming.
	// Example: "manufacturing", "hospitality"
	Industry string

	// TargetCategories restricts extraction to the listed categories.
	// Empty means both "product" and "service".
	TargetCategories []string

	// FileMetadata carries caller-supplied hints about the document
	// (content type, original filename).
	FileMetadata map[string]string
}

// ExtractedItem is one product or service identified in a document.
type ExtractedItem struct {
	// Name is the item identifier as it appears in the document.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Content is the text used for embedding generation. When empty,
	// callers fall back to name and description.
	Content string

	// Attributes holds industry-specific fields with no fixed schema.
	Attributes map[string]any
}

// ExtractionResult is the outcome of a successful document extraction.
type ExtractionResult struct {
	// RawContent is the document's extracted text.
	RawContent string

	// Products and Services are the structured items found.
	Products []ExtractedItem
	Services []ExtractedItem

	// Metadata carries provider-reported details about the extraction
	// (model, detected language, page count).
	Metadata map[string]any
}

// DefaultTargetCategories are the categories extracted when a submission
// does not restrict them.
var DefaultTargetCategories = []string{"product", "service"}
