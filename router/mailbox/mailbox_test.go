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

package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendThenReceiveFIFO(t *testing.T) {
	b := NewBus(10)

	b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "t1"})
	b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "t2"})
	b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "t3"})

	msgs := b.Receive("w1", "a1", 10, time.Second)
	require.Len(t, msgs, 3)
	assert.Equal(t, "t1", msgs[0].Type)
	assert.Equal(t, "t2", msgs[1].Type)
	assert.Equal(t, "t3", msgs[2].Type)
}

func TestReceiveRespectsMaxMessages(t *testing.T) {
	b := NewBus(10)
	for i := 0; i < 5; i++ {
		b.Send(Message{WorkflowID: "w1", TargetID: "a1"})
	}

	first := b.Receive("w1", "a1", 2, time.Second)
	assert.Len(t, first, 2)
	assert.Equal(t, 3, b.Len("w1", "a1"))
}

func TestSendQueueFull(t *testing.T) {
	b := NewBus(2)
	assert.Equal(t, SendOK, b.Send(Message{WorkflowID: "w1", TargetID: "a1"}))
	assert.Equal(t, SendOK, b.Send(Message{WorkflowID: "w1", TargetID: "a1"}))
	assert.Equal(t, SendQueueFull, b.Send(Message{WorkflowID: "w1", TargetID: "a1"}))
}

func TestReceiveBlocksUntilSend(t *testing.T) {
	b := NewBus(10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(30 * time.Millisecond)
		b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "late"})
	}()

	start := time.Now()
	msgs := b.Receive("w1", "a1", 10, time.Second)
	elapsed := time.Since(start)

	wg.Wait()
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", msgs[0].Type)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
}

func TestReceiveTimesOutEmpty(t *testing.T) {
	b := NewBus(10)
	start := time.Now()
	msgs := b.Receive("w1", "nobody", 10, 50*time.Millisecond)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReceiveDiscardsExpiredMessages(t *testing.T) {
	b := NewBus(10)
	b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "stale", CreatedAt: time.Now().Add(-time.Hour), TTL: time.Minute})
	b.Send(Message{WorkflowID: "w1", TargetID: "a1", Type: "fresh"})

	msgs := b.Receive("w1", "a1", 10, time.Second)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Type)
}

func TestEvictWorkflowRemovesItsMailboxes(t *testing.T) {
	b := NewBus(10)
	b.Send(Message{WorkflowID: "w1", TargetID: "a1"})
	b.Send(Message{WorkflowID: "w1", TargetID: "a2"})
	b.Send(Message{WorkflowID: "w2", TargetID: "a1"})

	b.EvictWorkflow("w1")

	assert.False(t, b.Exists("w1", "a1"))
	assert.False(t, b.Exists("w1", "a2"))
	assert.True(t, b.Exists("w2", "a1"))
}

func TestEvictIdleRemovesOnlyEmptyStaleMailboxes(t *testing.T) {
	b := NewBus(10)
	b.Send(Message{WorkflowID: "w1", TargetID: "empty-old"})
	b.Receive("w1", "empty-old", 10, time.Second)
	b.Send(Message{WorkflowID: "w1", TargetID: "has-messages"})

	bx, _ := b.boxFor("w1", "empty-old", false)
	bx.mu.Lock()
	bx.lastTouch = time.Now().Add(-time.Hour)
	bx.mu.Unlock()

	b.EvictIdle(time.Minute)

	assert.False(t, b.Exists("w1", "empty-old"))
	assert.True(t, b.Exists("w1", "has-messages"))
}

func TestLenReportsMinusOneForUnknownMailbox(t *testing.T) {
	b := NewBus(10)
	assert.Equal(t, -1, b.Len("w1", "nobody"))
}
