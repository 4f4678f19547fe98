package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/docflow/core"
)

// Queue names for the two pipeline stages.
const (
	// ExtractionQueue feeds stage-1 extraction workers.
	ExtractionQueue = "extraction"

	// StorageQueue feeds stage-2 storage workers.
	StorageQueue = "storage"
)

// MarshalExtractionTask serializes a stage-1 task for the queue.
func MarshalExtractionTask(task *core.ExtractionTask) ([]byte, error) {
	return json.Marshal(task)
}

// UnmarshalExtractionTask deserializes a stage-1 task from the queue.
func UnmarshalExtractionTask(data []byte) (*core.ExtractionTask, error) {
	var task core.ExtractionTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("corrupt extraction task payload: %w", err)
	}
	return &task, nil
}

// MarshalStorageTask serializes a stage-2 task for the queue.
func MarshalStorageTask(task *core.StorageTask) ([]byte, error) {
	return json.Marshal(task)
}

// UnmarshalStorageTask deserializes a stage-2 task from the queue.
func UnmarshalStorageTask(data []byte) (*core.StorageTask, error) {
	var task core.StorageTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("corrupt storage task payload: %w", err)
	}
	return &task, nil
}
