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


// Package storage provides the storage abstraction layer for docflow.
//
// This package defines repository interfaces that decouple storage
// implementation from pipeline logic. It allows different backends
// (BadgerDB, in-memory, etc.) to be used interchangeably.
//
// # Constructor Return Type Pattern
//
// This package follows a strict "return interface" pattern for all public
// constructors to enforce abstraction and enable multiple backend
// implementations:
//
//	queue, err := badger.NewQueueRepository(backend)  // returns storage.QueueRepository
//
// Internal package constructors may return concrete types since they are
// only used within the implementation package.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - QueueRepository: durable named FIFO queues with atomic claim
//   - JobRepository: job-status records with forward-only transitions
//   - RateLimitRepository: sliding-window admission counters
//   - PointRepository: vector points with filtered deletes and similarity search
//
// The queue and the job store are the only shared, concurrently-mutated
// resources in the pipeline; their own transactional operations provide
// all cross-worker coordination.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and
// timeout support.
package storage
