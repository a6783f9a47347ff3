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

package stats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/router/connectors/httpclient"
	"axonflow/router/router/registry"
)

func TestScrapeOnePopulatesStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"running_requests":3,"queued_requests":1,"gpu_utilization":0.5,"kv_cache_fraction":0.2,"avg_ttft_ms":120,"avg_inter_token_ms":15}`))
	}))
	defer srv.Close()

	reg := registry.New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true})
	c := NewCollector(reg, client, "/stats", time.Minute, time.Minute)

	c.scrapeOne(context.Background(), srv.URL)

	got := c.Get(srv.URL)
	require.False(t, got.Stale)
	assert.Equal(t, 3, got.RunningRequests)
	assert.Equal(t, 0.5, got.GPUUtilization)
}

func TestScrapeFailureMarksStale(t *testing.T) {
	reg := registry.New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true, Timeout: 50 * time.Millisecond})
	c := NewCollector(reg, client, "/stats", time.Minute, time.Minute)

	c.scrapeOne(context.Background(), "http://127.0.0.1:1")

	assert.True(t, c.Get("http://127.0.0.1:1").Stale)
}

func TestGetMarksStaleAfterTwoIntervals(t *testing.T) {
	reg := registry.New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true})
	c := NewCollector(reg, client, "/stats", time.Millisecond, time.Minute)

	c.stateFor("http://a").stats.LastScraped = time.Now().Add(-time.Second)
	assert.True(t, c.Get("http://a").Stale)
}

func TestRecordCompletionComputesQPS(t *testing.T) {
	reg := registry.New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true})
	c := NewCollector(reg, client, "/stats", time.Minute, 10*time.Second)

	now := time.Now()
	for i := 0; i < 5; i++ {
		c.RecordCompletion("http://a", now, now, 10)
	}

	st := c.stateFor("http://a")
	st.mu.Lock()
	qps := c.qpsLocked(st, now)
	st.mu.Unlock()

	assert.InDelta(t, 0.5, qps, 0.01)
}

func TestRecordCompletionEvictsOldEntries(t *testing.T) {
	reg := registry.New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true})
	c := NewCollector(reg, client, "/stats", time.Minute, time.Second)

	old := time.Now().Add(-time.Hour)
	c.RecordCompletion("http://a", old, old, 10)
	c.RecordCompletion("http://a", time.Now(), time.Now(), 10)

	st := c.stateFor("http://a")
	st.mu.RLock()
	defer st.mu.RUnlock()
	require.Len(t, st.history, 1)
}
