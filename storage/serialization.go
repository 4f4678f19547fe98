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


package storage

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/docflow/core"
)

// Records are serialized as JSON rather than a binary codec: task and
// result payloads carry schema-less attribute maps that must round-trip
// into the exact JSON shape delivered (and signed) on the callback.

// MarshalJobStatus serializes a JobStatus to bytes.
func MarshalJobStatus(status *core.JobStatus) ([]byte, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalJobStatus deserializes a JobStatus from bytes.
func UnmarshalJobStatus(data []byte) (*core.JobStatus, error) {
	var status core.JobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &status, nil
}

// MarshalPoint serializes a Point to bytes.
func MarshalPoint(point *core.Point) ([]byte, error) {
	data, err := json.Marshal(point)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalPoint deserializes a Point from bytes.
func UnmarshalPoint(data []byte) (*core.Point, error) {
	var point core.Point
	if err := json.Unmarshal(data, &point); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &point, nil
}

// MarshalWindow serializes a slice of window timestamps (unix nanos).
func MarshalWindow(entries []int64) ([]byte, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalWindow deserializes a slice of window timestamps.
func UnmarshalWindow(data []byte) ([]int64, error) {
	var entries []int64
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return entries, nil
}
