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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axonflow/router/router/registry"
)

type fakePinner struct {
	pin      string
	ok       bool
	recorded []bool

	lastPriority int
	lastStrategy string
}

func (f *fakePinner) AssignEngine(_, _ string, _ []string, priority int, contextSharingStrategy string) (string, bool) {
	f.lastPriority = priority
	f.lastStrategy = contextSharingStrategy
	return f.pin, f.ok
}

func (f *fakePinner) RecordRequest(_, _ string, cacheHit bool) {
	f.recorded = append(f.recorded, cacheHit)
}

func TestWorkflowAwareDelegatesWhenWorkflowPresent(t *testing.T) {
	pinner := &fakePinner{pin: "B", ok: true}
	p := NewWorkflowAware(pinner, NewRoundRobin())

	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}}
	d, err := p.Choose(context.Background(), candidates, Fingerprint{WorkflowID: "w1", AgentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "B", d.URL)
}

func TestWorkflowAwareForwardsMetadataToManager(t *testing.T) {
	pinner := &fakePinner{pin: "A", ok: true}
	p := NewWorkflowAware(pinner, NewRoundRobin())

	candidates := []registry.Endpoint{{URL: "A"}}
	fp := Fingerprint{WorkflowID: "w1", AgentID: "a1", WorkflowPriority: 5, ContextSharing: "broadcast"}
	_, err := p.Choose(context.Background(), candidates, fp)
	require.NoError(t, err)

	assert.Equal(t, 5, pinner.lastPriority)
	assert.Equal(t, "broadcast", pinner.lastStrategy)
}

func TestWorkflowAwareFallsBackWithoutWorkflowID(t *testing.T) {
	pinner := &fakePinner{}
	fallback := NewRoundRobin()
	p := NewWorkflowAware(pinner, fallback)

	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}}
	d, err := p.Choose(context.Background(), candidates, Fingerprint{})
	require.NoError(t, err)
	assert.Equal(t, "A", d.URL)
}

func TestWorkflowAwareFallsBackWhenManagerDeclines(t *testing.T) {
	pinner := &fakePinner{ok: false}
	fallback := NewRoundRobin()
	p := NewWorkflowAware(pinner, fallback)

	candidates := []registry.Endpoint{{URL: "A"}}
	d, err := p.Choose(context.Background(), candidates, Fingerprint{WorkflowID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, "A", d.URL)
}

func TestWorkflowAwareRecordOutcomeIgnoresNonWorkflowRequests(t *testing.T) {
	pinner := &fakePinner{}
	p := NewWorkflowAware(pinner, NewRoundRobin())
	p.RecordOutcome(Fingerprint{}, true)
	assert.Empty(t, pinner.recorded)
}

func TestWorkflowAwareRecordOutcomeForwardsToManager(t *testing.T) {
	pinner := &fakePinner{}
	p := NewWorkflowAware(pinner, NewRoundRobin())
	p.RecordOutcome(Fingerprint{WorkflowID: "w1", AgentID: "a1"}, true)
	require.Len(t, pinner.recorded, 1)
	assert.True(t, pinner.recorded[0])
}
