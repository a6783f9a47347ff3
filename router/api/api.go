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

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"axonflow/router/router/mailbox"
	"axonflow/router/router/registry"
	"axonflow/router/router/stats"
	"axonflow/router/router/workflow"
	"axonflow/router/shared/apierror"
)

const (
	defaultReceiveTimeout = 30 * time.Second
	maxReceiveTimeout     = 5 * time.Minute
	defaultMaxMessages    = 100
)

// API exposes the workflow HTTP surface. WorkflowRoutingEnabled mirrors
// whether the active routing-logic is workflow_aware; every handler except
// Stats returns MisconfiguredRoute when it is false.
type API struct {
	bus                    *mailbox.Bus
	workflows              *workflow.Manager
	reg                    *registry.Registry
	statsColl              *stats.Collector
	workflowRoutingEnabled bool
}

func New(bus *mailbox.Bus, workflows *workflow.Manager, reg *registry.Registry, statsColl *stats.Collector, workflowRoutingEnabled bool) *API {
	return &API{bus: bus, workflows: workflows, reg: reg, statsColl: statsColl, workflowRoutingEnabled: workflowRoutingEnabled}
}

// Register wires the workflow routes onto r under /v1/workflows.
func (a *API) Register(r *mux.Router) {
	sub := r.PathPrefix("/v1/workflows").Subrouter()
	sub.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)
	sub.HandleFunc("/{wf}/messages", a.handleSendMessage).Methods(http.MethodPost)
	sub.HandleFunc("/{wf}/agents/{ag}/messages", a.handleReceiveMessages).Methods(http.MethodGet)
	sub.HandleFunc("/{wf}/status", a.handleStatus).Methods(http.MethodGet)
}

type sendMessageRequest struct {
	SourceAgentID          string      `json:"source_agent_id"`
	TargetAgentID          string      `json:"target_agent_id"`
	Type                   string      `json:"type"`
	Payload                interface{} `json:"payload"`
	TTLSeconds             int         `json:"ttl_seconds,omitempty"`
	Priority               int         `json:"priority,omitempty"`
	ContextSharingStrategy string      `json:"context_sharing_strategy,omitempty"`
}

func (a *API) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !a.workflowRoutingEnabled {
		apierror.WriteJSON(w, apierror.New(apierror.MisconfiguredRoute, "workflow routing is not enabled"))
		return
	}

	wf := mux.Vars(r)["wf"]

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "malformed message body"))
		return
	}
	if req.TargetAgentID == "" {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "target_agent_id is required"))
		return
	}

	a.workflows.Register(wf, workflow.Metadata{
		Priority:               req.Priority,
		ContextSharingStrategy: workflow.ContextSharingStrategy(req.ContextSharingStrategy),
	})

	var ttl time.Duration
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	result := a.bus.Send(mailbox.Message{
		WorkflowID: wf,
		SourceID:   req.SourceAgentID,
		TargetID:   req.TargetAgentID,
		Type:       req.Type,
		Payload:    req.Payload,
		TTL:        ttl,
	})

	if result == mailbox.SendQueueFull {
		apierror.WriteJSON(w, apierror.New(apierror.QueueFull, "mailbox is at capacity"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReceiveMessages(w http.ResponseWriter, r *http.Request) {
	if !a.workflowRoutingEnabled {
		apierror.WriteJSON(w, apierror.New(apierror.MisconfiguredRoute, "workflow routing is not enabled"))
		return
	}

	vars := mux.Vars(r)
	wf, ag := vars["wf"], vars["ag"]

	if _, ok := a.workflows.Get(wf); !ok {
		apierror.WriteJSON(w, apierror.New(apierror.UnknownWorkflow, "unknown workflow "+wf))
		return
	}

	timeout := parseDurationParam(r, "timeout", defaultReceiveTimeout, maxReceiveTimeout)
	maxMessages := parseIntParam(r, "max_messages", defaultMaxMessages)

	msgs := a.bus.Receive(wf, ag, maxMessages, timeout)

	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{
			ID:         m.ID,
			SourceID:   m.SourceID,
			TargetID:   m.TargetID,
			Type:       m.Type,
			Payload:    m.Payload,
			CreatedAt:  m.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": out})
}

type messageView struct {
	ID        string      `json:"id"`
	SourceID  string      `json:"source_agent_id"`
	TargetID  string      `json:"target_agent_id"`
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !a.workflowRoutingEnabled {
		apierror.WriteJSON(w, apierror.New(apierror.MisconfiguredRoute, "workflow routing is not enabled"))
		return
	}

	wf := mux.Vars(r)["wf"]
	snap, ok := a.workflows.Get(wf)
	if !ok {
		apierror.WriteJSON(w, apierror.New(apierror.UnknownWorkflow, "unknown workflow "+wf))
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

type statsResponse struct {
	TotalWorkflows   int                          `json:"total_workflows"`
	Workflows        []workflow.Snapshot          `json:"workflows"`
	EndpointCount    int                          `json:"endpoint_count"`
	EndpointStats    map[string]stats.EngineStats `json:"endpoint_stats"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		EndpointCount: a.reg.Count(),
		EndpointStats: a.statsColl.All(),
	}
	if a.workflows != nil {
		resp.Workflows = a.workflows.Stats()
		resp.TotalWorkflows = a.workflows.Count()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseDurationParam(r *http.Request, name string, def, max time.Duration) time.Duration {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return def
	}
	d := time.Duration(secs) * time.Second
	if d > max {
		return max
	}
	return d
}

func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
