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

// Package mailbox implements the inter-agent message bus: a bounded FIFO
// per (workflow, agent) with send, long-poll receive, per-message TTL, and
// idle-mailbox eviction.
package mailbox

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is one inter-agent payload.
type Message struct {
	ID         string
	WorkflowID string
	SourceID   string
	TargetID   string
	Type       string
	Payload    interface{}
	CreatedAt  time.Time
	TTL        time.Duration
}

func (m Message) expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.CreatedAt) > m.TTL
}

// SendResult enumerates the outcome of a Send call.
type SendResult int

const (
	SendOK SendResult = iota
	SendQueueFull
)

// key identifies one mailbox.
type key struct {
	WorkflowID string
	AgentID    string
}

type box struct {
	mu       sync.Mutex
	cond     *sync.Cond
	messages []Message
	capacity int
	lastTouch time.Time
}

func newBox(capacity int) *box {
	b := &box{capacity: capacity, lastTouch: time.Now()}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Bus is the router-wide mailbox registry. The map guarding lookups is
// separate from each mailbox's own lock so a long Receive never blocks
// unrelated Send/Receive calls on other mailboxes.
type Bus struct {
	mapMu    sync.RWMutex
	boxes    map[key]*box
	capacity int
}

func NewBus(capacity int) *Bus {
	return &Bus{boxes: make(map[key]*box), capacity: capacity}
}

func (b *Bus) boxFor(workflowID, agentID string, create bool) (*box, bool) {
	k := key{workflowID, agentID}

	b.mapMu.RLock()
	bx, ok := b.boxes[k]
	b.mapMu.RUnlock()
	if ok || !create {
		return bx, ok
	}

	b.mapMu.Lock()
	defer b.mapMu.Unlock()
	if bx, ok := b.boxes[k]; ok {
		return bx, true
	}
	bx = newBox(b.capacity)
	b.boxes[k] = bx
	return bx, true
}

// Send enqueues msg into (msg.WorkflowID, msg.TargetID), creating the
// mailbox on first send. Returns SendQueueFull without enqueuing if the
// mailbox is already at capacity.
func (b *Bus) Send(msg Message) SendResult {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	bx, _ := b.boxFor(msg.WorkflowID, msg.TargetID, true)

	bx.mu.Lock()
	defer bx.mu.Unlock()
	if len(bx.messages) >= bx.capacity {
		return SendQueueFull
	}
	bx.messages = append(bx.messages, msg)
	bx.lastTouch = time.Now()
	bx.cond.Broadcast()
	return SendOK
}

// Len reports the current queue length of (workflowID, agentID), or -1 if
// the mailbox doesn't exist yet.
func (b *Bus) Len(workflowID, agentID string) int {
	bx, ok := b.boxFor(workflowID, agentID, false)
	if !ok {
		return -1
	}
	bx.mu.Lock()
	defer bx.mu.Unlock()
	return len(bx.messages)
}

// Receive blocks up to timeout for at least one non-expired message to
// become available in (workflowID, agentID), then drains up to maxMessages
// of them in FIFO order, silently discarding any expired messages found
// along the way.
func (b *Bus) Receive(workflowID, agentID string, maxMessages int, timeout time.Duration) []Message {
	bx, _ := b.boxFor(workflowID, agentID, true)

	deadline := time.Now().Add(timeout)

	bx.mu.Lock()
	defer bx.mu.Unlock()

	for {
		now := time.Now()
		b.dropExpiredLocked(bx, now)
		if len(bx.messages) > 0 || now.After(deadline) {
			break
		}
		waitFor(bx, deadline.Sub(now))
	}

	if maxMessages <= 0 || maxMessages > len(bx.messages) {
		maxMessages = len(bx.messages)
	}
	out := append([]Message(nil), bx.messages[:maxMessages]...)
	bx.messages = bx.messages[maxMessages:]
	bx.lastTouch = time.Now()
	return out
}

func (b *Bus) dropExpiredLocked(bx *box, now time.Time) {
	kept := bx.messages[:0]
	for _, m := range bx.messages {
		if !m.expired(now) {
			kept = append(kept, m)
		}
	}
	bx.messages = kept
}

// waitFor waits on bx.cond for at most d, waking periodically so expired
// messages get swept even with no new Send. Caller holds bx.mu.
func waitFor(bx *box, d time.Duration) {
	if d <= 0 {
		return
	}
	wait := d
	if wait > 50*time.Millisecond {
		wait = 50 * time.Millisecond
	}
	timer := time.AfterFunc(wait, func() {
		bx.mu.Lock()
		bx.cond.Broadcast()
		bx.mu.Unlock()
	})
	defer timer.Stop()
	bx.cond.Wait()
}

// EvictWorkflow removes every mailbox belonging to workflowID, called when
// the workflow manager evicts that workflow.
func (b *Bus) EvictWorkflow(workflowID string) {
	b.mapMu.Lock()
	defer b.mapMu.Unlock()
	for k := range b.boxes {
		if k.WorkflowID == workflowID {
			delete(b.boxes, k)
		}
	}
}

// EvictIdle removes mailboxes that have been empty and untouched for
// longer than idleTTL.
func (b *Bus) EvictIdle(idleTTL time.Duration) {
	cutoff := time.Now().Add(-idleTTL)

	b.mapMu.Lock()
	defer b.mapMu.Unlock()
	for k, bx := range b.boxes {
		bx.mu.Lock()
		idle := len(bx.messages) == 0 && bx.lastTouch.Before(cutoff)
		bx.mu.Unlock()
		if idle {
			delete(b.boxes, k)
		}
	}
}

// Exists reports whether a mailbox currently exists for (workflowID, agentID);
// it is false again once the mailbox has been evicted.
func (b *Bus) Exists(workflowID, agentID string) bool {
	_, ok := b.boxFor(workflowID, agentID, false)
	return ok
}
