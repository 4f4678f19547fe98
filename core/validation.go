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
	"fmt"
	"net/url"
)

// ValidateExtractionTask validates a stage-1 task before it is enqueued.
//
// Validation rules:
//   - SourceURL must not be empty
//   - CompanyID must not be empty
//   - CallbackURL, when present, must be an http(s) URL
//
// NOT validated (populated by the pipeline):
//   - TaskID (minted at submission)
//   - CreatedAt (set at submission)
func ValidateExtractionTask(task *ExtractionTask) error {
	if task == nil {
		return fmt.Errorf("%w: task is nil", ErrInvalidSubmission)
	}

	if task.SourceURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, ErrEmptySourceURL)
	}

	if task.CompanyID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, ErrEmptyCompanyID)
	}

	if task.CallbackURL != "" && !IsValidCallbackURL(task.CallbackURL) {
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, ErrInvalidCallbackURL)
	}

	return nil
}

// ValidateJobState validates that a JobState has a known value.
func ValidateJobState(state JobState) error {
	switch state {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return nil
	}
	return fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, state)
}

// IsValidCallbackURL checks that a caller-supplied callback URL parses
// and uses an http or https scheme. The URL is untrusted input; the
// dispatcher additionally refuses to follow redirects on delivery.
func IsValidCallbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
