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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/router/router/registry"
	"axonflow/router/router/stats"
)

type fakeIndex struct {
	hints map[string]string
}

func newFakeIndex() *fakeIndex { return &fakeIndex{hints: make(map[string]string)} }

func (f *fakeIndex) Lookup(_ context.Context, prefixHash string) (string, bool, error) {
	url, ok := f.hints[prefixHash]
	return url, ok, nil
}

func (f *fakeIndex) Record(_ context.Context, prefixHash, url string, _ time.Duration) error {
	f.hints[prefixHash] = url
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func TestPrefixCachePrefersHintedEngine(t *testing.T) {
	idx := newFakeIndex()
	idx.hints["hash1"] = "B"
	statsFn := func(string) stats.EngineStats { return stats.EngineStats{} }

	p := NewPrefixCache(statsFn, idx, time.Minute)
	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}}

	d, err := p.Choose(context.Background(), candidates, Fingerprint{PromptPrefixHash: "hash1"})
	require.NoError(t, err)
	assert.Equal(t, "B", d.URL)
}

func TestPrefixCacheBreaksTiesOnRunningRequests(t *testing.T) {
	statsFn := func(url string) stats.EngineStats {
		if url == "A" {
			return stats.EngineStats{RunningRequests: 5}
		}
		return stats.EngineStats{RunningRequests: 1}
	}

	p := NewPrefixCache(statsFn, nil, time.Minute)
	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}}

	d, err := p.Choose(context.Background(), candidates, Fingerprint{})
	require.NoError(t, err)
	assert.Equal(t, "B", d.URL)
}

func TestPrefixCacheRecordsChoiceIntoIndex(t *testing.T) {
	idx := newFakeIndex()
	statsFn := func(string) stats.EngineStats { return stats.EngineStats{} }
	p := NewPrefixCache(statsFn, idx, time.Minute)
	candidates := []registry.Endpoint{{URL: "A"}}

	_, err := p.Choose(context.Background(), candidates, Fingerprint{PromptPrefixHash: "hash2"})
	require.NoError(t, err)

	url, ok, _ := idx.Lookup(context.Background(), "hash2")
	assert.True(t, ok)
	assert.Equal(t, "A", url)
}

func TestPrefixCacheRejectsEmptyCandidates(t *testing.T) {
	p := NewPrefixCache(nil, nil, 0)
	_, err := p.Choose(context.Background(), nil, Fingerprint{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}
