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


package ai

import (
	"errors"
	"fmt"
)

// ExtractError reports a failed document extraction. Structural failures
// (unsupported content type, permanently unreachable source) will not
// succeed on retry; everything else is treated as transient.
type ExtractError struct {
	Reason     string
	Structural bool
	Err        error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return "extraction failed: " + e.Reason
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewStructuralError creates an ExtractError that must not be retried.
func NewStructuralError(reason string) *ExtractError {
	return &ExtractError{Reason: reason, Structural: true}
}

// NewTransientError creates an ExtractError that may be retried.
func NewTransientError(reason string, err error) *ExtractError {
	return &ExtractError{Reason: reason, Err: err}
}

// IsStructural reports whether err is a structural extraction failure.
func IsStructural(err error) bool {
	var ee *ExtractError
	return errors.As(err, &ee) && ee.Structural
}
