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

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/router/connectors/httpclient"
)

func TestListForModel(t *testing.T) {
	r := New(0)
	r.Replace([]Endpoint{
		{URL: "http://a", Models: []string{"llama"}},
		{URL: "http://b", Models: []string{"mixtral"}},
		{URL: "http://c", Models: []string{"llama", "mixtral"}},
	})

	got := r.ListForModel("llama")
	urls := map[string]bool{}
	for _, e := range got {
		urls[e.URL] = true
	}
	assert.Equal(t, map[string]bool{"http://a": true, "http://c": true}, urls)
}

func TestListExcludesStale(t *testing.T) {
	r := New(time.Second)
	r.Replace([]Endpoint{
		{URL: "http://fresh", Models: []string{"m"}, LastSeen: time.Now()},
		{URL: "http://stale", Models: []string{"m"}, LastSeen: time.Now().Add(-time.Hour)},
	})

	got := r.List()
	require.Len(t, got, 1)
	assert.Equal(t, "http://fresh", got[0].URL)
}

func TestReplaceFiresRemovalCallback(t *testing.T) {
	r := New(0)
	r.Replace([]Endpoint{{URL: "http://a", Models: []string{"m"}}, {URL: "http://b", Models: []string{"m"}}})

	var removed []string
	var mu sync.Mutex
	r.OnRemoval(func(url string) {
		mu.Lock()
		removed = append(removed, url)
		mu.Unlock()
	})

	r.Replace([]Endpoint{{URL: "http://a", Models: []string{"m"}}})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http://b"}, removed)
}

func TestWaitReady(t *testing.T) {
	r := New(0)
	assert.False(t, r.Ready())

	select {
	case <-r.WaitReady():
		t.Fatal("should not be ready yet")
	default:
	}

	r.Replace([]Endpoint{{URL: "http://a", Models: []string{"m"}}})

	select {
	case <-r.WaitReady():
	case <-time.After(time.Second):
		t.Fatal("expected ready channel to close")
	}
	assert.True(t, r.Ready())
}

func TestControllerPollerUpdatesRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"url": "http://engine-1", "model": "llama"},
		})
	}))
	defer srv.Close()

	r := New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true})
	poller := NewControllerPoller(srv.URL, client, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.poll(ctx, r)

	require.Equal(t, 1, r.Count())
	assert.True(t, r.Has("http://engine-1"))
	assert.False(t, poller.Degraded())
}

func TestControllerPollerMarksDegradedOnFailure(t *testing.T) {
	r := New(0)
	client := httpclient.New(httpclient.Options{AllowPrivateIPs: true, Timeout: 50 * time.Millisecond})
	poller := NewControllerPoller("http://127.0.0.1:1", client, time.Hour, nil)

	ctx := context.Background()
	poller.poll(ctx, r)

	assert.True(t, poller.Degraded())
}
