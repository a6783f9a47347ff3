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
	"time"

	"axonflow/router/connectors/cacheindex"
	"axonflow/router/router/registry"
	"axonflow/router/router/stats"
)

// cachedPrefixScore is the assumed KV-cache benefit of routing to the
// engine the index last recorded for this prefix hash; expressed in the
// same units as load penalty so the two are comparable.
const cachedPrefixScore = 1.0

// PrefixCache scores each candidate by the expected benefit of reusing a
// warm KV cache for the request's prompt prefix, minus a load penalty, and
// ties break on the fewest currently-running requests. It is the fallback
// target for workflow-aware routing when a request carries no workflow id.
type PrefixCache struct {
	statsFn  func(url string) stats.EngineStats
	index    cacheindex.Store
	indexTTL time.Duration
}

func NewPrefixCache(statsFn func(url string) stats.EngineStats, index cacheindex.Store, indexTTL time.Duration) *PrefixCache {
	return &PrefixCache{statsFn: statsFn, index: index, indexTTL: indexTTL}
}

func (p *PrefixCache) Choose(ctx context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}

	hintURL, hasHint := p.lookupHint(ctx, fp)

	best := candidates[0]
	bestScore := p.score(best.URL, hintURL, hasHint)
	bestRunning := p.running(best.URL)

	for _, c := range candidates[1:] {
		s := p.score(c.URL, hintURL, hasHint)
		running := p.running(c.URL)
		if s > bestScore || (s == bestScore && running < bestRunning) {
			best, bestScore, bestRunning = c, s, running
		}
	}

	if fp.PromptPrefixHash != "" {
		p.record(ctx, fp.PromptPrefixHash, best.URL)
	}

	return Decision{URL: best.URL}, nil
}

func (p *PrefixCache) lookupHint(ctx context.Context, fp Fingerprint) (string, bool) {
	if p.index == nil || fp.PromptPrefixHash == "" {
		return "", false
	}
	url, ok, err := p.index.Lookup(ctx, fp.PromptPrefixHash)
	if err != nil || !ok {
		return "", false
	}
	return url, true
}

func (p *PrefixCache) record(ctx context.Context, prefixHash, url string) {
	if p.index == nil {
		return
	}
	ttl := p.indexTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	_ = p.index.Record(ctx, prefixHash, url, ttl)
}

func (p *PrefixCache) score(url, hintURL string, hasHint bool) float64 {
	expectedPrefix := 0.0
	if hasHint && url == hintURL {
		expectedPrefix = cachedPrefixScore
	}
	return expectedPrefix - p.loadPenalty(url)
}

func (p *PrefixCache) loadPenalty(url string) float64 {
	if p.statsFn == nil {
		return 0
	}
	st := p.statsFn(url)
	penalty := 0.1*st.GPUUtilization + 0.1*st.KVCacheFraction
	if st.Stale {
		penalty += 0.5
	}
	return penalty
}

func (p *PrefixCache) running(url string) int {
	if p.statsFn == nil {
		return 0
	}
	return p.statsFn(url).RunningRequests
}
