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

	"axonflow/router/router/registry"
)

// WorkflowPinner is the subset of *workflow.Manager that WorkflowAware
// depends on, kept narrow so tests can supply a fake.
type WorkflowPinner interface {
	AssignEngine(workflowID, agentID string, candidates []string, priority int, contextSharingStrategy string) (string, bool)
	RecordRequest(workflowID, agentID string, cacheHit bool)
}

// WorkflowAware pins requests carrying workflow metadata to one engine via
// the workflow manager, and falls back to the cache-aware policy for
// requests with no workflow id.
type WorkflowAware struct {
	manager  WorkflowPinner
	fallback Policy
}

func NewWorkflowAware(manager WorkflowPinner, fallback Policy) *WorkflowAware {
	return &WorkflowAware{manager: manager, fallback: fallback}
}

func (p *WorkflowAware) Choose(ctx context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}

	if !fp.HasWorkflow() {
		return p.fallback.Choose(ctx, candidates, fp)
	}

	url, ok := p.manager.AssignEngine(fp.WorkflowID, fp.AgentID, urls(candidates), fp.WorkflowPriority, fp.ContextSharing)
	if !ok {
		return p.fallback.Choose(ctx, candidates, fp)
	}
	return Decision{URL: url}, nil
}

// RecordOutcome reports the cache-hit result of a completed workflow
// request back to the manager; called by the proxy once the response's
// cached-token count is known.
func (p *WorkflowAware) RecordOutcome(fp Fingerprint, cacheHit bool) {
	if !fp.HasWorkflow() {
		return
	}
	p.manager.RecordRequest(fp.WorkflowID, fp.AgentID, cacheHit)
}
