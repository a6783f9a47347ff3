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

// Package stats collects and serves per-endpoint load indicators: a
// periodic scrape of each engine's own metrics endpoint, plus an
// in-process rolling window of completed requests fed by the proxy.
package stats

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"axonflow/router/connectors/httpclient"
	"axonflow/router/router/registry"
	"axonflow/router/shared/logger"
)

// EngineStats is the most recently scraped load snapshot for one endpoint.
type EngineStats struct {
	RunningRequests  int
	QueuedRequests   int
	GPUUtilization   float64
	KVCacheFraction  float64
	QPS              float64
	AvgTTFTMillis    float64
	AvgInterTokenMs  float64
	LastScraped      time.Time
	Stale            bool
}

// requestRecord is one completed request in an endpoint's rolling window.
type requestRecord struct {
	arrived    time.Time
	completed  time.Time
	tokenCount int
}

type endpointState struct {
	mu      sync.RWMutex
	stats   EngineStats
	history []requestRecord
}

// scrapeResponse is the wire shape expected from a backend's stats path.
type scrapeResponse struct {
	RunningRequests int     `json:"running_requests"`
	QueuedRequests  int     `json:"queued_requests"`
	GPUUtilization  float64 `json:"gpu_utilization"`
	KVCacheFraction float64 `json:"kv_cache_fraction"`
	AvgTTFTMillis   float64 `json:"avg_ttft_ms"`
	AvgInterTokenMs float64 `json:"avg_inter_token_ms"`
}

// Collector scrapes every Registry endpoint on a fixed interval and accepts
// asynchronous request-completion updates from the proxy.
type Collector struct {
	reg          *registry.Registry
	client       *httpclient.Client
	scrapePath   string
	interval     time.Duration
	windowSize   time.Duration
	log          *logger.Logger

	mu    sync.RWMutex
	state map[string]*endpointState
}

func NewCollector(reg *registry.Registry, client *httpclient.Client, scrapePath string, interval, windowSize time.Duration) *Collector {
	return &Collector{
		reg:        reg,
		client:     client,
		scrapePath: scrapePath,
		interval:   interval,
		windowSize: windowSize,
		log:        logger.New("stats-collector"),
		state:      make(map[string]*endpointState),
	}
}

// Run scrapes every endpoint on the configured interval until ctx is done.
func (c *Collector) Run(ctx context.Context) {
	c.scrapeAll(ctx)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scrapeAll(ctx)
		}
	}
}

func (c *Collector) scrapeAll(ctx context.Context) {
	for _, ep := range c.reg.List() {
		c.scrapeOne(ctx, ep.URL)
	}
}

func (c *Collector) scrapeOne(ctx context.Context, url string) {
	st := c.stateFor(url)

	status, body, err := c.client.Get(ctx, url+c.scrapePath, nil)
	if err != nil || status != 200 {
		st.mu.Lock()
		st.stats.Stale = true
		st.mu.Unlock()
		c.log.Debug("", "stats scrape failed", map[string]interface{}{"url": url, "error": errString(err)})
		return
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		st.mu.Lock()
		st.stats.Stale = true
		st.mu.Unlock()
		return
	}

	st.mu.Lock()
	now := time.Now()
	qps := c.qpsLocked(st, now)
	st.stats = EngineStats{
		RunningRequests: parsed.RunningRequests,
		QueuedRequests:  parsed.QueuedRequests,
		GPUUtilization:  parsed.GPUUtilization,
		KVCacheFraction: parsed.KVCacheFraction,
		QPS:             qps,
		AvgTTFTMillis:   parsed.AvgTTFTMillis,
		AvgInterTokenMs: parsed.AvgInterTokenMs,
		LastScraped:     now,
		Stale:           false,
	}
	st.mu.Unlock()
}

// RecordCompletion appends a completed request to url's rolling window,
// called by the proxy once a response finishes.
func (c *Collector) RecordCompletion(url string, arrived, completed time.Time, tokenCount int) {
	st := c.stateFor(url)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.history = append(st.history, requestRecord{arrived: arrived, completed: completed, tokenCount: tokenCount})
	c.evictOldLocked(st, time.Now())
}

func (c *Collector) evictOldLocked(st *endpointState, now time.Time) {
	cutoff := now.Add(-c.windowSize)
	i := 0
	for i < len(st.history) && st.history[i].completed.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.history = st.history[i:]
	}
}

// qpsLocked computes requests/sec over the current window. Caller holds st.mu.
func (c *Collector) qpsLocked(st *endpointState, now time.Time) float64 {
	c.evictOldLocked(st, now)
	if c.windowSize <= 0 || len(st.history) == 0 {
		return 0
	}
	return float64(len(st.history)) / c.windowSize.Seconds()
}

// Get returns the most recent snapshot for url, marking it stale if it
// hasn't been refreshed within 2x the scrape interval.
func (c *Collector) Get(url string) EngineStats {
	st := c.stateFor(url)
	st.mu.RLock()
	defer st.mu.RUnlock()
	snap := st.stats
	if !snap.LastScraped.IsZero() && time.Since(snap.LastScraped) > 2*c.interval {
		snap.Stale = true
	}
	return snap
}

// All returns a snapshot of every endpoint's stats currently tracked.
func (c *Collector) All() map[string]EngineStats {
	c.mu.RLock()
	urls := make([]string, 0, len(c.state))
	for url := range c.state {
		urls = append(urls, url)
	}
	c.mu.RUnlock()

	out := make(map[string]EngineStats, len(urls))
	for _, url := range urls {
		out[url] = c.Get(url)
	}
	return out
}

func (c *Collector) stateFor(url string) *endpointState {
	c.mu.RLock()
	st, ok := c.state[url]
	c.mu.RUnlock()
	if ok {
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.state[url]; ok {
		return st
	}
	st = &endpointState{}
	c.state[url] = st
	return st
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
