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
	"time"

	"axonflow/router/connectors/httpclient"
	"axonflow/router/shared/logger"
)

// StaticEntry is one backend as configured via flags/env/YAML for static
// discovery.
type StaticEntry struct {
	URL    string
	Models []string
	Labels map[string]string
}

// LoadStatic populates the Registry once from a fixed list and never
// touches it again.
func LoadStatic(r *Registry, entries []StaticEntry) {
	now := time.Now()
	endpoints := make([]Endpoint, 0, len(entries))
	for _, e := range entries {
		endpoints = append(endpoints, Endpoint{
			URL:      e.URL,
			Models:   e.Models,
			Labels:   e.Labels,
			LastSeen: now,
		})
	}
	r.Replace(endpoints)
}

// controllerBackend is the wire shape returned by the cluster controller's
// list endpoint.
type controllerBackend struct {
	URL    string            `json:"url"`
	Model  string            `json:"model"`
	Models []string          `json:"models"`
	Labels map[string]string `json:"labels"`
}

// ControllerPoller periodically queries a cluster-controller endpoint and
// diff-updates a Registry. A failed or unparseable poll is logged, marks the
// poller degraded and leaves the previous snapshot in place. During the
// cold-start grace period (until the first non-empty poll) an empty backend
// list is ignored rather than replacing the set.
type ControllerPoller struct {
	url      string
	client   *httpclient.Client
	token    func(ctx context.Context) (string, error)
	interval time.Duration
	log      *logger.Logger

	coldStart bool
	degraded  bool
}

func NewControllerPoller(controllerURL string, client *httpclient.Client, interval time.Duration, token func(ctx context.Context) (string, error)) *ControllerPoller {
	return &ControllerPoller{
		url:       controllerURL,
		client:    client,
		token:     token,
		interval:  interval,
		log:       logger.New("registry"),
		coldStart: true,
	}
}

// Degraded reports whether the most recent poll failed.
func (p *ControllerPoller) Degraded() bool { return p.degraded }

// Run polls until ctx is cancelled, updating r after every successful poll.
func (p *ControllerPoller) Run(ctx context.Context, r *Registry) {
	p.poll(ctx, r)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, r)
		}
	}
}

func (p *ControllerPoller) poll(ctx context.Context, r *Registry) {
	headers := map[string]string{}
	if p.token != nil {
		if tok, err := p.token(ctx); err == nil && tok != "" {
			headers["Authorization"] = "Bearer " + tok
		} else if err != nil {
			p.log.Warn("", "failed to resolve controller token", map[string]interface{}{"error": err.Error()})
		}
	}

	status, body, err := p.client.Get(ctx, p.url, headers)
	if err != nil || status != 200 {
		p.degraded = true
		p.log.Warn("", "controller poll failed", map[string]interface{}{
			"url": p.url, "status": status, "error": errString(err),
		})
		return
	}

	var backends []controllerBackend
	if err := json.Unmarshal(body, &backends); err != nil {
		p.degraded = true
		p.log.Warn("", "controller response unparseable", map[string]interface{}{"error": err.Error()})
		return
	}

	if len(backends) == 0 && p.coldStart {
		// Not yet degraded: the controller may simply not have reported
		// anything during startup.
		return
	}

	now := time.Now()
	endpoints := make([]Endpoint, 0, len(backends))
	for _, b := range backends {
		models := b.Models
		if len(models) == 0 && b.Model != "" {
			models = []string{b.Model}
		}
		endpoints = append(endpoints, Endpoint{
			URL:      b.URL,
			Models:   models,
			Labels:   b.Labels,
			LastSeen: now,
		})
	}

	r.Replace(endpoints)
	p.coldStart = false
	p.degraded = false
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
