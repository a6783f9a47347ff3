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

package workflow

import (
	"sync"
	"time"

	"axonflow/router/router/stats"
)

// ContextSharingStrategy is the declared affinity strategy for a workflow.
// It is recorded on the workflow; no routing decision depends on its value.
type ContextSharingStrategy string

const (
	StrategyAuto      ContextSharingStrategy = "auto"
	StrategyBroadcast ContextSharingStrategy = "broadcast"
	StrategySelective ContextSharingStrategy = "selective"
	StrategyNone      ContextSharingStrategy = "none"
)

// Metadata is caller-supplied context; non-zero fields are merged in on every
// Register and AssignEngine call.
type Metadata struct {
	Priority               int                    `json:"priority"`
	ContextSharingStrategy ContextSharingStrategy `json:"context_sharing_strategy"`
}

// Context is the live state the router tracks for one workflow.
type Context struct {
	WorkflowID  string
	CreatedAt   time.Time
	LastActive  time.Time
	TTL         time.Duration
	PinnedURL   string
	Metadata    Metadata

	agents        map[string]time.Time
	requestCount  int64
	cacheHitCount int64
}

// Snapshot is a read-only copy of Context safe to hand to callers.
type Snapshot struct {
	WorkflowID    string
	CreatedAt     time.Time
	LastActive    time.Time
	PinnedURL     string
	ActiveAgents  int
	RequestCount  int64
	CacheHitCount int64
	CacheHitRate  float64
	Metadata      Metadata
}

// LoadWeights configures the workflow-aware load-score formula.
type LoadWeights struct {
	GPU   float64
	KV    float64
	QPS   float64
	QPSNormalization float64
	LocalityDiscount float64 // multiplicative bonus for same-workflow colocation, e.g. 0.8
}

func DefaultLoadWeights() LoadWeights {
	return LoadWeights{GPU: 0.4, KV: 0.3, QPS: 0.3, QPSNormalization: 100, LocalityDiscount: 0.8}
}

// Manager tracks active workflows under a single map guarded by an
// RWMutex, plus a per-workflow mutex so concurrent first-requests for the
// same fresh workflow id cannot pin it to two different engines.
type Manager struct {
	mu         sync.RWMutex
	workflows  map[string]*Context
	locks      map[string]*sync.Mutex
	maxEntries int
	weights    LoadWeights
	statsFn    func(url string) stats.EngineStats
}

func NewManager(maxEntries int, weights LoadWeights, statsFn func(url string) stats.EngineStats) *Manager {
	return &Manager{
		workflows:  make(map[string]*Context),
		locks:      make(map[string]*sync.Mutex),
		maxEntries: maxEntries,
		weights:    weights,
		statsFn:    statsFn,
	}
}

// Register creates the workflow context if absent, or refreshes its
// last-activity time and metadata otherwise. Idempotent.
func (m *Manager) Register(workflowID string, meta Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx, ok := m.workflows[workflowID]; ok {
		ctx.LastActive = time.Now()
		mergeMetadata(&ctx.Metadata, meta)
		return
	}

	if m.maxEntries > 0 && len(m.workflows) >= m.maxEntries {
		m.evictLRULocked()
	}

	now := time.Now()
	m.workflows[workflowID] = &Context{
		WorkflowID: workflowID,
		CreatedAt:  now,
		LastActive: now,
		Metadata:   meta,
		agents:     make(map[string]time.Time),
	}
}

// mergeMetadata copies non-zero fields of incoming onto dst, leaving
// previously recorded values in place when a caller omits them.
func mergeMetadata(dst *Metadata, incoming Metadata) {
	if incoming.Priority != 0 {
		dst.Priority = incoming.Priority
	}
	if incoming.ContextSharingStrategy != "" {
		dst.ContextSharingStrategy = incoming.ContextSharingStrategy
	}
}

// evictLRULocked removes the least-recently-active workflow. Caller holds m.mu.
func (m *Manager) evictLRULocked() {
	var oldestID string
	var oldestTime time.Time
	for id, ctx := range m.workflows {
		if oldestID == "" || ctx.LastActive.Before(oldestTime) {
			oldestID = id
			oldestTime = ctx.LastActive
		}
	}
	if oldestID != "" {
		delete(m.workflows, oldestID)
		delete(m.locks, oldestID)
	}
}

// perWorkflowLock returns (creating if necessary) the serialization mutex
// for workflowID.
func (m *Manager) perWorkflowLock(workflowID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[workflowID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[workflowID] = l
	}
	return l
}

// AssignEngine returns workflowID's pinned engine if it's in candidates;
// otherwise it scores every candidate and pins the lowest-scoring (least
// loaded) one. Concurrent first-requests for the same workflow serialize
// on a per-workflow lock so they cannot observe different pins. priority
// and contextSharingStrategy are recorded on the workflow context the same
// way Register does, so metadata supplied on the request that triggers
// pinning is not lost just because the caller never called Register
// explicitly. Pass zero values when the caller has no metadata to supply.
func (m *Manager) AssignEngine(workflowID, agentID string, candidates []string, priority int, contextSharingStrategy string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	meta := Metadata{Priority: priority, ContextSharingStrategy: ContextSharingStrategy(contextSharingStrategy)}

	lock := m.perWorkflowLock(workflowID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	ctx, ok := m.workflows[workflowID]
	if !ok {
		if m.maxEntries > 0 && len(m.workflows) >= m.maxEntries {
			m.evictLRULocked()
		}
		now := time.Now()
		ctx = &Context{WorkflowID: workflowID, CreatedAt: now, LastActive: now, Metadata: meta, agents: make(map[string]time.Time)}
		m.workflows[workflowID] = ctx
	} else {
		mergeMetadata(&ctx.Metadata, meta)
	}
	ctx.LastActive = time.Now()
	ctx.agents[agentID] = ctx.LastActive
	pinned := ctx.PinnedURL
	m.mu.Unlock()

	if pinned != "" && contains(candidates, pinned) {
		return pinned, true
	}

	best := m.selectLeastLoaded(candidates, workflowID)

	m.mu.Lock()
	ctx.PinnedURL = best
	m.mu.Unlock()

	return best, true
}

func (m *Manager) selectLeastLoaded(candidates []string, workflowID string) string {
	best := candidates[0]
	bestScore := m.score(candidates[0], workflowID)
	for _, c := range candidates[1:] {
		s := m.score(c, workflowID)
		if s < bestScore {
			best = c
			bestScore = s
		}
	}
	return best
}

// score computes the weighted load score for a candidate; a locality
// discount is applied when the candidate already hosts another workflow's
// pin, rewarding cache locality without letting one engine absorb every
// workflow.
func (m *Manager) score(url, workflowID string) float64 {
	st := stats.EngineStats{}
	if m.statsFn != nil {
		st = m.statsFn(url)
	}

	qpsNorm := m.weights.QPSNormalization
	if qpsNorm <= 0 {
		qpsNorm = 100
	}
	normalizedQPS := st.QPS / qpsNorm
	if normalizedQPS > 1 {
		normalizedQPS = 1
	}

	raw := m.weights.GPU*st.GPUUtilization + m.weights.KV*st.KVCacheFraction + m.weights.QPS*normalizedQPS

	if m.hostsOtherWorkflow(url, workflowID) {
		discount := m.weights.LocalityDiscount
		if discount <= 0 {
			discount = 1
		}
		raw *= discount
	}

	return raw
}

func (m *Manager) hostsOtherWorkflow(url, workflowID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, ctx := range m.workflows {
		if id != workflowID && ctx.PinnedURL == url {
			return true
		}
	}
	return false
}

// GetEngine is a read-only peek at workflowID's current pin.
func (m *Manager) GetEngine(workflowID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.workflows[workflowID]
	if !ok || ctx.PinnedURL == "" {
		return "", false
	}
	return ctx.PinnedURL, true
}

// RecordRequest updates last-activity and cache-hit counters for workflowID.
func (m *Manager) RecordRequest(workflowID, agentID string, cacheHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, ok := m.workflows[workflowID]
	if !ok {
		return
	}
	now := time.Now()
	ctx.LastActive = now
	ctx.agents[agentID] = now
	ctx.requestCount++
	if cacheHit {
		ctx.cacheHitCount++
	}
}

// Get returns a snapshot of workflowID, or false if unknown.
func (m *Manager) Get(workflowID string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.workflows[workflowID]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(ctx), true
}

// Stats returns a snapshot of every tracked workflow.
func (m *Manager) Stats() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.workflows))
	for _, ctx := range m.workflows {
		out = append(out, snapshotOf(ctx))
	}
	return out
}

func snapshotOf(ctx *Context) Snapshot {
	rate := 0.0
	if ctx.requestCount > 0 {
		rate = float64(ctx.cacheHitCount) / float64(ctx.requestCount)
	}
	return Snapshot{
		WorkflowID:    ctx.WorkflowID,
		CreatedAt:     ctx.CreatedAt,
		LastActive:    ctx.LastActive,
		PinnedURL:     ctx.PinnedURL,
		ActiveAgents:  len(ctx.agents),
		RequestCount:  ctx.requestCount,
		CacheHitCount: ctx.cacheHitCount,
		CacheHitRate:  rate,
		Metadata:      ctx.Metadata,
	}
}

// Count returns the number of tracked workflows.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workflows)
}

// ClearPin removes workflowID's engine pin, e.g. because the endpoint
// disappeared from the Registry. It does not remove the workflow itself.
func (m *Manager) ClearPin(workflowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx, ok := m.workflows[workflowID]; ok {
		ctx.PinnedURL = ""
	}
}

// OnEndpointRemoved clears the pin of every workflow pointing at url; wired
// as a registry.RemovalFunc.
func (m *Manager) OnEndpointRemoved(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ctx := range m.workflows {
		if ctx.PinnedURL == url {
			ctx.PinnedURL = ""
		}
	}
}

// Cleanup removes every workflow whose TTL has elapsed, returning their
// ids so the caller (the supervisor) can evict the corresponding mailboxes.
func (m *Manager) Cleanup(ttl time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired []string
	for id, ctx := range m.workflows {
		effectiveTTL := ctx.TTL
		if effectiveTTL <= 0 {
			effectiveTTL = ttl
		}
		if now.Sub(ctx.LastActive) > effectiveTTL {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.workflows, id)
		delete(m.locks, id)
	}
	return expired
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
