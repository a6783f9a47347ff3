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

package proxy

import "encoding/json"

// WorkflowMetadata is the optional top-level field a client attaches to a
// completion request to opt into workflow-aware routing. Its absence
// yields the fallback policy.
type WorkflowMetadata struct {
	WorkflowID             string `json:"workflow_id"`
	AgentID                string `json:"agent_id"`
	WorkflowPriority       int    `json:"workflow_priority,omitempty"`
	ContextSharingStrategy string `json:"context_sharing_strategy,omitempty"`
}

// completionRequest extracts only the fields routing needs. Unknown fields
// are tolerated and irrelevant here because the original request body,
// not this struct, is what gets forwarded upstream.
type completionRequest struct {
	Model            string            `json:"model"`
	Prompt           string            `json:"prompt,omitempty"`
	Messages         []chatMessage     `json:"messages,omitempty"`
	Stream           bool              `json:"stream,omitempty"`
	WorkflowMetadata *WorkflowMetadata `json:"workflow_metadata,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func parseCompletionRequest(body []byte) (completionRequest, error) {
	var req completionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return completionRequest{}, err
	}
	return req, nil
}

// promptText returns the text used to derive the cache-aware prefix hash:
// the raw prompt for legacy completions, or the concatenated chat messages
// in order for chat completions.
func (r completionRequest) promptText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	text := ""
	for _, m := range r.Messages {
		text += m.Role + ":" + m.Content + "\n"
	}
	return text
}

type usageResponse struct {
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
