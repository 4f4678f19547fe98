package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callbackRecorder captures webhook deliveries for assertions.
type callbackRecorder struct {
	mu     sync.Mutex
	bodies [][]byte
	server *httptest.Server
}

func newCallbackRecorder(t *testing.T) *callbackRecorder {
	t.Helper()
	rec := &callbackRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (r *callbackRecorder) URL() string {
	return r.server.URL
}

func (r *callbackRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

// failureEnvelope mirrors core.WebhookEnvelope with a typed failure payload.
type failureEnvelope struct {
	TaskID    string              `json:"task_id"`
	Status    core.JobState       `json:"status"`
	CompanyID string              `json:"company_id"`
	Payload   core.FailurePayload `json:"payload"`
}

func (r *callbackRecorder) LastFailure(t *testing.T) failureEnvelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.bodies)
	var env failureEnvelope
	require.NoError(t, json.Unmarshal(r.bodies[len(r.bodies)-1], &env))
	return env
}

func enqueueExtraction(t *testing.T, producer *Producer, callbackURL string) *core.JobStatus {
	t.Helper()
	status, err := producer.Submit(context.Background(), &Submission{
		SourceURL:   "https://example.com/products/catalog.pdf",
		CompanyID:   "acme",
		Industry:    "manufacturing",
		CallbackURL: callbackURL,
	})
	require.NoError(t, err)
	return status
}

func TestExtractionSuccessHandsOffToStorage(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	rec := newCallbackRecorder(t)
	dispatcher := webhook.NewDispatcher("secret")

	producer, err := NewProducer(queueRepo, jobRepo, nil)
	require.NoError(t, err)
	status := enqueueExtraction(t, producer, rec.URL())

	extractor := mock.NewMockExtractor()
	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher)
	require.NoError(t, err)

	ctx := context.Background()
	payload, err := queueRepo.Dequeue(ctx, ExtractionQueue, time.Second)
	require.NoError(t, err)
	worker.Handle(ctx, payload)

	// The job is claimed and stays processing until stage 2 finishes it.
	fetched, err := jobRepo.Get(ctx, status.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobProcessing, fetched.State)
	assert.NotNil(t, fetched.StartedAt)

	// The stage-2 task carries a fresh id plus the origin id.
	next, err := queueRepo.Dequeue(ctx, StorageQueue, time.Second)
	require.NoError(t, err)
	storageTask, err := UnmarshalStorageTask(next)
	require.NoError(t, err)
	assert.NotEmpty(t, storageTask.TaskID)
	assert.NotEqual(t, status.JobID, storageTask.TaskID)
	assert.Equal(t, status.JobID, storageTask.OriginTaskID)
	assert.Equal(t, "acme", storageTask.CompanyID)
	assert.Equal(t, rec.URL(), storageTask.CallbackURL)
	assert.Len(t, storageTask.StructuredData.Products, 2)
	assert.Len(t, storageTask.StructuredData.Services, 1)
	assert.NotEmpty(t, storageTask.RawContent)

	// No webhook until a terminal state.
	assert.Equal(t, 0, rec.Count())
}

func TestExtractionRetriesTransientFailures(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	rec := newCallbackRecorder(t)
	dispatcher := webhook.NewDispatcher("secret")

	producer, err := NewProducer(queueRepo, jobRepo, nil)
	require.NoError(t, err)
	enqueueExtraction(t, producer, rec.URL())

	extractor := mock.NewMockExtractor()
	attempts := 0
	extractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
		attempts++
		if attempts < 3 {
			return nil, ai.NewTransientError("provider busy", nil)
		}
		return &ai.ExtractionResult{RawContent: "ok"}, nil
	}

	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher,
		WithExtractionRetries(3, time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	payload, err := queueRepo.Dequeue(ctx, ExtractionQueue, time.Second)
	require.NoError(t, err)
	worker.Handle(ctx, payload)

	assert.Equal(t, 3, attempts)
	// Third attempt succeeded: work moved on to stage 2, no failure webhook.
	n, err := queueRepo.Len(ctx, StorageQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, rec.Count())
}

func TestExtractionStructuralFailureNotRetried(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	rec := newCallbackRecorder(t)
	dispatcher := webhook.NewDispatcher("secret")

	producer, err := NewProducer(queueRepo, jobRepo, nil)
	require.NoError(t, err)
	status := enqueueExtraction(t, producer, rec.URL())

	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
		return nil, ai.NewStructuralError("unsupported content type")
	}

	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher,
		WithExtractionRetries(5, time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	payload, err := queueRepo.Dequeue(ctx, ExtractionQueue, time.Second)
	require.NoError(t, err)
	worker.Handle(ctx, payload)

	assert.Equal(t, 1, extractor.CallCount(), "structural failures must not be retried")

	fetched, err := jobRepo.Get(ctx, status.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, fetched.State)
	assert.NotEmpty(t, fetched.Error)

	require.Equal(t, 1, rec.Count())
	env := rec.LastFailure(t)
	assert.Equal(t, status.JobID, env.TaskID)
	assert.Equal(t, core.JobFailed, env.Status)
	assert.Equal(t, "extraction", env.Payload.Stage)
}

func TestExtractionExhaustedRetriesFailJob(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	rec := newCallbackRecorder(t)
	dispatcher := webhook.NewDispatcher("secret")

	producer, err := NewProducer(queueRepo, jobRepo, nil)
	require.NoError(t, err)
	status := enqueueExtraction(t, producer, rec.URL())

	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
		return nil, ai.NewTransientError("provider down", nil)
	}

	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher,
		WithExtractionRetries(3, time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	payload, err := queueRepo.Dequeue(ctx, ExtractionQueue, time.Second)
	require.NoError(t, err)
	worker.Handle(ctx, payload)

	assert.Equal(t, 3, extractor.CallCount())

	fetched, err := jobRepo.Get(ctx, status.JobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, fetched.State)
	assert.Equal(t, 1, rec.Count())
}

func TestExtractionSkipsRedeliveredTerminalJob(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	rec := newCallbackRecorder(t)
	dispatcher := webhook.NewDispatcher("secret")

	producer, err := NewProducer(queueRepo, jobRepo, nil)
	require.NoError(t, err)
	status := enqueueExtraction(t, producer, rec.URL())

	ctx := context.Background()

	// Simulate a previous delivery that already finished the job.
	_, err = jobRepo.Transition(ctx, status.JobID, core.JobFailed, nil)
	require.NoError(t, err)

	extractor := mock.NewMockExtractor()
	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher)
	require.NoError(t, err)

	payload, err := queueRepo.Dequeue(ctx, ExtractionQueue, time.Second)
	require.NoError(t, err)
	worker.Handle(ctx, payload)

	// The duplicate delivery does no work and sends no second webhook.
	assert.Equal(t, 0, extractor.CallCount())
	assert.Equal(t, 0, rec.Count())
}

func TestExtractionCorruptPayloadDropped(t *testing.T) {
	queueRepo, jobRepo, _ := newTestRepos(t)
	dispatcher := webhook.NewDispatcher("secret")

	extractor := mock.NewMockExtractor()
	worker, err := NewExtractionWorker(queueRepo, jobRepo, extractor, dispatcher)
	require.NoError(t, err)

	worker.Handle(context.Background(), []byte("{not json"))
	assert.Equal(t, 0, extractor.CallCount())
}
