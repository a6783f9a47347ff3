// Copyright 2025 AxonFlow
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

package routing

import (
	"context"
	"sync"

	"axonflow/router/router/registry"
)

// RoundRobin keeps one cursor per model so concurrent requests for
// different models don't contend on the same counter.
type RoundRobin struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursors: make(map[string]int)}
}

func (p *RoundRobin) Choose(_ context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.cursors[fp.Model]
	// Re-anchor when the candidate set shrinks so a stale cursor from a
	// larger fleet doesn't always skip the same tail of the new one.
	idx := cur % len(candidates)
	p.cursors[fp.Model] = cur + 1

	return Decision{URL: candidates[idx].URL}, nil
}
