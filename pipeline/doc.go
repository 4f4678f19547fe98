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


// Package pipeline contains the two-stage asynchronous task pipeline.
//
// The producer admits a submission through the rate limiter, enqueues a
// stage-1 extraction task and creates the pending job record. The
// extraction worker consumes stage-1 tasks, calls the inference
// provider, and hands the result to the storage stage by enqueueing a
// stage-2 task. The storage worker embeds and upserts every extracted
// item, writes the terminal job status, and dispatches the signed
// webhook.
//
// Each worker role runs as an independent pool of goroutines pulling
// from its own queue. The queue and the job-status store are the only
// shared mutable resources; their own atomic operations provide all
// cross-worker coordination. FIFO holds within a single queue; there is
// no ordering guarantee across the two queues.
//
// Failures inside a worker never crash the worker: they are caught,
// logged, and converted into a terminal failed status plus a best-effort
// failure webhook. Only a corrupt task payload is logged without a
// webhook, since it carries no reliable callback URL.
package pipeline
