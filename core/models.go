package core

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// NewTaskID mints a globally unique identifier for one pipeline stage.
// Each stage gets its own id; the StorageTask additionally carries the
// extraction task id as OriginTaskID so the final callback can correlate both.
func NewTaskID() string {
	return uuid.NewString()
}

// PointIDFor derives the vector-store point identifier for a catalog item
// using BLAKE2b hashing. Identical (task, category, name) tuples always
// produce the same identifier, which makes per-item upserts idempotent
// when a task is redelivered.
func PointIDFor(taskID, category, name string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(taskID))
	h.Write([]byte{0})
	h.Write([]byte(category))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(name)))
	return hex.EncodeToString(h.Sum(nil))
}

// Category classifies a catalog item extracted from a document.
type Category string

const (
	// CategoryProduct marks an item sold as a product.
	CategoryProduct Category = "product"
	// CategoryService marks an item offered as a service.
	CategoryService Category = "service"
)

// ExtractionTask is the stage-1 work item: fetch a document through the
// inference provider and extract structured business data from it.
type ExtractionTask struct {
	TaskID           string            `json:"task_id"`
	CompanyID        string            `json:"company_id"`
	SourceURL        string            `json:"source_url"`
	Industry         string            `json:"industry,omitempty"`
	TargetCategories []string          `json:"target_categories,omitempty"`
	FileMetadata     map[string]string `json:"file_metadata,omitempty"`
	CallbackURL      string            `json:"callback_url,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// CatalogItem is one extracted product or service. The envelope fields are
// fixed; industry-specific fields live in the open Attributes map.
type CatalogItem struct {
	Name        string         `json:"name"`
	Category    Category       `json:"category"`
	Description string         `json:"description,omitempty"`
	Content     string         `json:"content,omitempty"`
	PointID     string         `json:"point_id,omitempty"`
	Stored      bool           `json:"stored"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// EmbeddingText returns the text used to generate the item's embedding.
// Falls back to name and description when no dedicated content was extracted.
func (i *CatalogItem) EmbeddingText() string {
	if i.Content != "" {
		return i.Content
	}
	if i.Description != "" {
		return i.Name + ". " + i.Description
	}
	return i.Name
}

// StructuredData groups the extracted catalog items by category.
type StructuredData struct {
	Products []CatalogItem `json:"products"`
	Services []CatalogItem `json:"services"`
}

// Items returns pointers to every item across both categories,
// products first. Mutations through the pointers are visible in the
// StructuredData, which is how the storage stage records point ids.
func (d *StructuredData) Items() []*CatalogItem {
	items := make([]*CatalogItem, 0, len(d.Products)+len(d.Services))
	for idx := range d.Products {
		items = append(items, &d.Products[idx])
	}
	for idx := range d.Services {
		items = append(items, &d.Services[idx])
	}
	return items
}

// StorageTask is the stage-2 work item: embed every extracted item and
// upsert it into the vector point store. OriginTaskID always traces back
// to the ExtractionTask that produced it and identifies the job record
// the storage stage is allowed to mutate.
type StorageTask struct {
	TaskID             string         `json:"task_id"`
	OriginTaskID       string         `json:"origin_task_id"`
	CompanyID          string         `json:"company_id"`
	StructuredData     StructuredData `json:"structured_data"`
	RawContent         string         `json:"raw_content,omitempty"`
	ExtractionMetadata map[string]any `json:"extraction_metadata,omitempty"`
	CallbackURL        string         `json:"callback_url,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// JobState is the lifecycle state of a tracked job.
type JobState string

const (
	// JobPending means the job is enqueued and no worker has claimed it.
	JobPending JobState = "pending"
	// JobProcessing means a worker currently owns the job.
	JobProcessing JobState = "processing"
	// JobCompleted is the successful terminal state.
	JobCompleted JobState = "completed"
	// JobFailed is the unsuccessful terminal state.
	JobFailed JobState = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStatus tracks a job across both pipeline stages. It is written by
// whichever worker currently owns the task and read independently by
// status-polling callers. Records expire from storage after the
// retention window; a poll after expiry sees "not found".
type JobStatus struct {
	JobID       string         `json:"job_id"`
	State       JobState       `json:"status"`
	OwnerID     string         `json:"owner_id"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// WebhookEnvelope is the outbound notification delivered to the caller's
// callback URL. It is immutable once constructed; the dispatcher signs
// the exact JSON serialization of the whole envelope.
type WebhookEnvelope struct {
	TaskID    string    `json:"task_id"`
	Status    JobState  `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	CompanyID string    `json:"company_id"`
	Payload   any       `json:"payload"`
}

// CompletionPayload is the envelope payload for a finished storage stage.
// The envelope's task_id is the extraction (job) id the caller knows;
// StorageTaskID reports the stage-2 id so both can be correlated.
// Per-item point ids and stored flags report partial success faithfully.
type CompletionPayload struct {
	StorageTaskID  string         `json:"storage_task_id"`
	RawContent     string         `json:"raw_content,omitempty"`
	StructuredData StructuredData `json:"structured_data"`
	ItemsExtracted int            `json:"items_extracted"`
	ItemsStored    int            `json:"items_stored"`
	ItemsFailed    int            `json:"items_failed"`
}

// FailurePayload is the envelope payload for a failed stage. RawContent
// carries whatever was already extracted so the backend can keep that much.
type FailurePayload struct {
	StorageTaskID string `json:"storage_task_id,omitempty"`
	Stage         string `json:"stage"`
	Error         string `json:"error"`
	RawContent    string `json:"raw_content,omitempty"`
}

// Point is one stored vector with its payload, keyed by a deterministic
// identifier. TaskID and CompanyID back the filtered delete operations.
type Point struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	CompanyID  string         `json:"company_id"`
	Category   Category       `json:"category"`
	Name       string         `json:"name"`
	Vector     []float32      `json:"vector"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// PointMatch is a similarity-search hit over stored points.
type PointMatch struct {
	Point *Point
	Score float32
}
