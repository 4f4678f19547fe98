// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package webhook builds, signs, and delivers outbound pipeline
// notifications.
//
// Delivery is at-most-once by design: a non-2xx response or network
// failure is logged and the attempt abandoned, with no automatic retry.
// Callers that miss a callback reconcile by polling the job status
// endpoint within the retention window, or through the search endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/docflow/core"
)

const (
	// SignatureHeader carries the payload signature as "sha256=<hex>".
	SignatureHeader = "X-Webhook-Signature"

	// SourceHeader identifies the sending system to the receiver.
	SourceHeader = "X-Webhook-Source"

	// DefaultSource is the source identifier sent with every delivery.
	DefaultSource = "docflow"

	// DefaultTimeout bounds one delivery attempt end to end. A slow or
	// hung receiver must not block a worker indefinitely.
	DefaultTimeout = 10 * time.Second
)

// Dispatcher signs and delivers webhook envelopes.
type Dispatcher struct {
	client  *http.Client
	secret  []byte
	source  string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the per-delivery timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithSource overrides the source identifier header value.
func WithSource(source string) Option {
	return func(d *Dispatcher) {
		if source != "" {
			d.source = source
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher signing with the shared secret.
// The callback URL is untrusted caller input, so the underlying client
// never follows redirects.
func NewDispatcher(secret string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		secret:  []byte(secret),
		source:  DefaultSource,
		timeout: DefaultTimeout,
		logger:  slog.Default().With("component", "webhook"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.client = &http.Client{
		Timeout: d.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return d
}

// Deliver serializes the envelope, signs the exact serialized bytes, and
// posts them to url. An empty url is a no-op (the caller asked for no
// callback). Errors are returned for observability but the pipeline
// treats them as logged-only: the job is already terminal.
func (d *Dispatcher) Deliver(ctx context.Context, url string, envelope *core.WebhookEnvelope) error {
	if url == "" {
		d.logger.Debug("no callback URL, skipping delivery", "task", envelope.TaskID)
		return nil
	}
	if !core.IsValidCallbackURL(url) {
		d.logger.Warn("refusing delivery to invalid callback URL", "task", envelope.TaskID)
		return fmt.Errorf("%w: invalid callback URL", core.ErrWebhookDelivery)
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %w", core.ErrWebhookDelivery, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", core.ErrWebhookDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SourceHeader, d.source)
	req.Header.Set(SignatureHeader, SignaturePrefix+Sign(d.secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Error("webhook delivery failed", "task", envelope.TaskID, "err", err)
		return fmt.Errorf("%w: %w", core.ErrWebhookDelivery, err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("webhook receiver rejected delivery",
			"task", envelope.TaskID, "status", resp.StatusCode)
		return fmt.Errorf("%w: receiver returned %d", core.ErrWebhookDelivery, resp.StatusCode)
	}

	d.logger.Info("webhook delivered", "task", envelope.TaskID, "status", envelope.Status)
	return nil
}
