package docflow

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
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/pipeline"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		ServerCfg: config.ServerCfg{Host: "127.0.0.1", Port: 8080},
		StoreCfg: config.StoreCfg{
			InMemory:     true,
			JobRetention: 24 * time.Hour,
		},
		WebhookCfg: config.WebhookCfg{
			Secret:  "topsecret",
			Timeout: 5 * time.Second,
		},
		PipelineCfg: config.PipelineCfg{
			ExtractionPoolSize: 2,
			StoragePoolSize:    2,
			ExtractionRetries:  2,
			RetryBaseDelay:     10 * time.Millisecond,
		},
		RateLimitCfg: config.RateLimitCfg{
			SubmitPerHour: 100,
			StatusPerHour: 1000,
			SearchPerHour: 100,
		},
	}
}

type deliveryRecorder struct {
	mu         sync.Mutex
	bodies     [][]byte
	signatures []string
	server     *httptest.Server
}

func newDeliveryRecorder(t *testing.T) *deliveryRecorder {
	t.Helper()
	rec := &deliveryRecorder{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, body)
		rec.signatures = append(rec.signatures, r.Header.Get(webhook.SignatureHeader))
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (r *deliveryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func waitForTerminal(t *testing.T, jobs storage.JobRepository, jobID string) *core.JobStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, err := jobs.Get(context.Background(), jobID)
		require.NoError(t, err)
		if status.State.Terminal() {
			return status
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func TestServiceEndToEnd(t *testing.T) {
	rec := newDeliveryRecorder(t)
	provider := mock.NewMockProvider()

	service, err := NewService(testConfig(), WithProvider(provider))
	require.NoError(t, err)
	defer service.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	status, err := service.Producer().Submit(ctx, &pipeline.Submission{
		SourceURL:   "https://example.com/products/catalog.pdf",
		CompanyID:   "acme",
		Industry:    "manufacturing",
		CallbackURL: rec.server.URL,
	})
	require.NoError(t, err)

	final := waitForTerminal(t, service.JobRepository(), status.JobID)
	require.Equal(t, core.JobCompleted, final.State)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	// The mock extractor yields 2 products + 1 service; all must store.
	assert.EqualValues(t, 3, final.Result["items_extracted"])
	assert.EqualValues(t, 3, final.Result["items_stored"])
	assert.EqualValues(t, 0, final.Result["items_failed"])

	storageTaskID, ok := final.Result["storage_task_id"].(string)
	require.True(t, ok, "expected storage_task_id in result")

	// Points are addressable under their deterministic ids.
	point, err := service.PointRepository().GetPoint(ctx,
		core.PointIDFor(storageTaskID, "product", "catalog.pdf widget"))
	require.NoError(t, err)
	assert.Equal(t, "acme", point.CompanyID)
	assert.NotEmpty(t, point.Vector)

	// Exactly one webhook, signed over the exact bytes received.
	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 25*time.Millisecond)
	rec.mu.Lock()
	body, signature := rec.bodies[0], rec.signatures[0]
	rec.mu.Unlock()
	assert.True(t, webhook.Verify([]byte("topsecret"), body, signature))

	var envelope struct {
		TaskID    string                 `json:"task_id"`
		Status    core.JobState          `json:"status"`
		CompanyID string                 `json:"company_id"`
		Payload   core.CompletionPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, status.JobID, envelope.TaskID)
	assert.Equal(t, core.JobCompleted, envelope.Status)
	assert.Equal(t, "acme", envelope.CompanyID)
	assert.Equal(t, storageTaskID, envelope.Payload.StorageTaskID)
	assert.Equal(t, 3, envelope.Payload.ItemsStored)
}

func TestServiceEndToEndExtractionFailure(t *testing.T) {
	rec := newDeliveryRecorder(t)

	extractor := mock.NewMockExtractor()
	extractor.ExtractFunc = func(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
		return nil, ai.NewStructuralError("unsupported content type")
	}
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(), extractor)

	service, err := NewService(testConfig(), WithProvider(provider))
	require.NoError(t, err)
	defer service.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	service.Start(ctx)

	status, err := service.Producer().Submit(ctx, &pipeline.Submission{
		SourceURL:   "https://example.com/broken.bin",
		CompanyID:   "acme",
		CallbackURL: rec.server.URL,
	})
	require.NoError(t, err)

	final := waitForTerminal(t, service.JobRepository(), status.JobID)
	require.Equal(t, core.JobFailed, final.State)
	assert.Contains(t, final.Error, "unsupported content type")

	// Structural failures are not retried.
	assert.Equal(t, 1, extractor.CallCount())

	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 25*time.Millisecond)
	rec.mu.Lock()
	body, signature := rec.bodies[0], rec.signatures[0]
	rec.mu.Unlock()
	assert.True(t, webhook.Verify([]byte("topsecret"), body, signature))

	var envelope struct {
		Status  core.JobState       `json:"status"`
		Payload core.FailurePayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, core.JobFailed, envelope.Status)
	assert.Equal(t, "extraction", envelope.Payload.Stage)
}
