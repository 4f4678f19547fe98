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


// Package search provides semantic search over the stored catalog points.
//
// The Searcher embeds a free-text query and ranks points by vector
// similarity, with a verbatim keyword boost on top. It is the read
// side of the pipeline: backends use it to verify what was actually
// stored for a company, including reconciliation after a lost webhook.
package search
