package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnvelope() *core.WebhookEnvelope {
	return &core.WebhookEnvelope{
		TaskID:    "task-1",
		Status:    core.JobCompleted,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CompanyID: "acme",
		Payload: core.CompletionPayload{
			StorageTaskID:  "storage-1",
			ItemsExtracted: 2,
			ItemsStored:    2,
		},
	}
}

func TestDeliverSignsExactBytes(t *testing.T) {
	var gotBody []byte
	var gotSignature, gotSource string

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		gotSource = r.Header.Get(SourceHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	dispatcher := NewDispatcher("topsecret")
	envelope := testEnvelope()
	require.NoError(t, dispatcher.Deliver(context.Background(), receiver.URL, envelope))

	// The signature must verify against the exact bytes received.
	assert.True(t, Verify([]byte("topsecret"), gotBody, gotSignature))
	assert.Equal(t, DefaultSource, gotSource)

	// A single mutated byte must break verification.
	mutated := append([]byte{}, gotBody...)
	mutated[0] ^= 0x01
	assert.False(t, Verify([]byte("topsecret"), mutated, gotSignature))

	// The body is the envelope's JSON serialization.
	var decoded core.WebhookEnvelope
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, envelope.TaskID, decoded.TaskID)
	assert.Equal(t, envelope.Status, decoded.Status)
	assert.Equal(t, envelope.CompanyID, decoded.CompanyID)
}

func TestDeliverWrongSecretFailsVerification(t *testing.T) {
	var gotBody []byte
	var gotSignature string

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	dispatcher := NewDispatcher("topsecret")
	require.NoError(t, dispatcher.Deliver(context.Background(), receiver.URL, testEnvelope()))

	assert.False(t, Verify([]byte("othersecret"), gotBody, gotSignature))
}

func TestDeliverEmptyURLIsNoop(t *testing.T) {
	dispatcher := NewDispatcher("topsecret")
	assert.NoError(t, dispatcher.Deliver(context.Background(), "", testEnvelope()))
}

func TestDeliverInvalidURL(t *testing.T) {
	dispatcher := NewDispatcher("topsecret")
	err := dispatcher.Deliver(context.Background(), "ftp://example.com/cb", testEnvelope())
	assert.ErrorIs(t, err, core.ErrWebhookDelivery)
}

func TestDeliverNon2xxIsError(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer receiver.Close()

	dispatcher := NewDispatcher("topsecret")
	err := dispatcher.Deliver(context.Background(), receiver.URL, testEnvelope())
	assert.ErrorIs(t, err, core.ErrWebhookDelivery)
}

func TestDeliverDoesNotFollowRedirects(t *testing.T) {
	followed := false
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed = true
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer redirecting.Close()

	dispatcher := NewDispatcher("topsecret")
	err := dispatcher.Deliver(context.Background(), redirecting.URL, testEnvelope())

	// The 302 itself is treated as a rejection; the target never sees a request.
	assert.ErrorIs(t, err, core.ErrWebhookDelivery)
	assert.False(t, followed)
}

func TestDeliverUnreachableReceiver(t *testing.T) {
	dispatcher := NewDispatcher("topsecret", WithTimeout(500*time.Millisecond))
	err := dispatcher.Deliver(context.Background(), "http://127.0.0.1:1/cb", testEnvelope())
	assert.ErrorIs(t, err, core.ErrWebhookDelivery)
}

func TestVerifyAcceptsPrefixedAndBareSignatures(t *testing.T) {
	secret := []byte("s")
	payload := []byte("body")
	sig := Sign(secret, payload)

	assert.True(t, Verify(secret, payload, sig))
	assert.True(t, Verify(secret, payload, SignaturePrefix+sig))
	assert.False(t, Verify(secret, payload, "sha256=deadbeef"))
}
