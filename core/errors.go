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


package core

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors shared across the pipeline
var (
	// ErrQueueUnavailable indicates the backing queue store cannot accept
	// work. Surfaced to the submitting caller as a retryable condition.
	ErrQueueUnavailable = errors.New("queue unavailable")

	// ErrInvalidTransition indicates a job status transition was attempted
	// from a terminal state or backwards. Expected under redelivery; workers
	// log it and skip, they do not propagate it as a failure.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrInvalidSubmission indicates a task submission failed validation.
	ErrInvalidSubmission = errors.New("invalid task submission")

	// ErrEmptySourceURL indicates the submission has no source URL.
	ErrEmptySourceURL = errors.New("source_url cannot be empty")

	// ErrEmptyCompanyID indicates the submission has no company identifier.
	ErrEmptyCompanyID = errors.New("company_id cannot be empty")

	// ErrInvalidCallbackURL indicates the callback URL is not http or https.
	ErrInvalidCallbackURL = errors.New("callback_url must be http or https")

	// ErrWebhookDelivery indicates an outbound notification was not
	// delivered. Non-fatal: the job is already terminal when delivery
	// is attempted.
	ErrWebhookDelivery = errors.New("webhook delivery failed")
)

// RateLimitedError reports a rejected admission attempt together with the
// time until the oldest recorded attempt leaves the sliding window.
type RateLimitedError struct {
	OwnerID    string
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s/%s, retry after %s", e.OwnerID, e.Action, e.RetryAfter)
}

// IsRateLimited reports whether err is a RateLimitedError and returns it.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rle *RateLimitedError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
