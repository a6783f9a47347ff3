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

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"axonflow/router/connectors/httpclient"
	"axonflow/router/router/registry"
	"axonflow/router/router/routing"
	"axonflow/router/router/stats"
	"axonflow/router/shared/apierror"
	"axonflow/router/shared/logger"
)

// Handshake headers injected on both legs of a disaggregated prefill/decode
// request so the receiving engine can pair the transfer with its peer.
const (
	handshakeIDHeader     = "X-Axonflow-Handshake-Id"
	handshakeRoleHeader   = "X-Axonflow-Handshake-Role"
	handshakePeerHeader   = "X-Axonflow-Handshake-Peer-Url"
	handshakeBufferHeader = "X-Axonflow-Handshake-Buffer-Size"
)

// OutcomeRecorder reports cache-hit results back into workflow-aware routing.
// *routing.WorkflowAware satisfies it; other policies don't need to.
type OutcomeRecorder interface {
	RecordOutcome(fp routing.Fingerprint, cacheHit bool)
}

// Config holds the Proxy's tunables, drawn from the router's configuration.
type Config struct {
	SessionHeader   string
	PromptPrefixLen int
	RetryBudget     int
}

// Proxy implements the completion request path.
type Proxy struct {
	reg       *registry.Registry
	statsColl *stats.Collector
	policy    routing.Policy
	client    *httpclient.Client
	cfg       Config
	log       *logger.Logger
}

func New(reg *registry.Registry, statsColl *stats.Collector, policy routing.Policy, client *httpclient.Client, cfg Config, log *logger.Logger) *Proxy {
	if cfg.SessionHeader == "" {
		cfg.SessionHeader = "X-User-Id"
	}
	if cfg.PromptPrefixLen <= 0 {
		cfg.PromptPrefixLen = 256
	}
	return &Proxy{reg: reg, statsColl: statsColl, policy: policy, client: client, cfg: cfg, log: log}
}

// ServeHTTP handles POST /v1/completions and POST /v1/chat/completions.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "failed to read request body"))
		return
	}

	req, err := parseCompletionRequest(body)
	if err != nil {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "malformed request body"))
		return
	}
	if req.Model == "" {
		apierror.WriteJSON(w, apierror.New(apierror.InvalidRequest, "missing model"))
		return
	}

	candidates := p.reg.ListForModel(req.Model)
	if len(candidates) == 0 {
		apierror.WriteJSON(w, apierror.New(apierror.NoBackendForModel, "no backend serves model "+req.Model))
		return
	}

	fp := p.fingerprint(r, req)

	excluded := map[string]bool{}
	attempts := p.cfg.RetryBudget + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		attemptCandidates := excludeURLs(candidates, excluded)
		if len(attemptCandidates) == 0 {
			break
		}

		decision, err := p.policy.Choose(r.Context(), attemptCandidates, fp)
		if err != nil {
			apierror.WriteJSON(w, apierror.New(apierror.NoBackendForModel, "routing policy found no candidate"))
			return
		}

		ok, retryable := p.forward(w, r, decision, body, fp, attempt == attempts-1)
		if ok {
			return
		}
		if !retryable || attempt == attempts-1 {
			lastErr = apierror.New(apierror.UpstreamTransient, "upstream request failed")
			break
		}
		excluded[decision.URL] = true
		if decision.DecodeURL != "" {
			excluded[decision.DecodeURL] = true
		}
	}

	if lastErr == nil {
		lastErr = apierror.New(apierror.AllBackendsUnhealthy, "no healthy backend available")
	}
	apierror.WriteJSON(w, lastErr)
}

func (p *Proxy) fingerprint(r *http.Request, req completionRequest) routing.Fingerprint {
	fp := routing.Fingerprint{
		Model:            req.Model,
		SessionKey:       r.Header.Get(p.cfg.SessionHeader),
		PromptPrefixHash: routing.HashPromptPrefix(req.promptText(), p.cfg.PromptPrefixLen),
	}
	if req.WorkflowMetadata != nil {
		fp.WorkflowID = req.WorkflowMetadata.WorkflowID
		fp.AgentID = req.WorkflowMetadata.AgentID
		fp.WorkflowPriority = req.WorkflowMetadata.WorkflowPriority
		fp.ContextSharing = req.WorkflowMetadata.ContextSharingStrategy
	}
	return fp
}

// forward dispatches decision and streams the client-facing response back
// to w. For every policy except disaggregated prefill this is a single hop
// to decision.URL. When the policy paired a prefill backend with a decode
// backend (decision.DecodeHandshake set), it first runs the prefill leg to
// completion, discarding its body, then streams the decode leg's response
// to the client as the single combined reply. forward returns ok=true once
// any bytes of the client-facing response have been written (at that point
// we can no longer retry, the client already has a partial response).
// retryable reports whether a failure observed before any bytes were
// written looks transient.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, decision routing.Decision, body []byte, fp routing.Fingerprint, lastAttempt bool) (ok bool, retryable bool) {
	if decision.DecodeHandshake != nil {
		ok, retryable := p.runHandshakeLeg(r, decision.URL, body, decision.PrefillHandshake)
		if !ok {
			return false, retryable
		}
		return p.forwardLeg(w, r, decision.DecodeURL, body, decision.DecodeHandshake, fp, lastAttempt)
	}
	return p.forwardLeg(w, r, decision.URL, body, nil, fp, lastAttempt)
}

// runHandshakeLeg performs the prefill half of a disaggregated request. Its
// response is not shown to the client: the decode engine produces the
// tokens the client ultimately receives. The prefill engine only needs to
// know the handshake to pair against the decode leg transferring the KV
// cache out-of-band.
func (p *Proxy) runHandshakeLeg(r *http.Request, backendURL string, body []byte, hs *routing.Handshake) (ok bool, retryable bool) {
	target := buildTarget(backendURL, r)
	headers := r.Header.Clone()
	applyHandshake(headers, hs)

	resp, err := p.client.Proxy(r.Context(), http.MethodPost, target, headers, bytes.NewReader(body))
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			return true, false
		}
		p.logError("prefill leg failed", backendURL, err)
		return false, isTransientNetErr(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return false, true
	}
	if resp.StatusCode >= 400 {
		p.logError("prefill leg rejected request", backendURL, errors.New(resp.Status))
		return false, false
	}
	return true, false
}

// forwardLeg sends body to backendURL and streams the response back to w,
// tagging the request with hs's handshake headers when hs is non-nil.
func (p *Proxy) forwardLeg(w http.ResponseWriter, r *http.Request, backendURL string, body []byte, hs *routing.Handshake, fp routing.Fingerprint, lastAttempt bool) (ok bool, retryable bool) {
	arrived := time.Now()

	target := buildTarget(backendURL, r)
	headers := r.Header.Clone()
	applyHandshake(headers, hs)

	resp, err := p.client.Proxy(r.Context(), http.MethodPost, target, headers, bytes.NewReader(body))
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			return true, false
		}
		p.logError("upstream connect failed", backendURL, err)
		return false, isTransientNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// A 5xx is never committed to the client: the caller retries another
		// backend, or reports UpstreamTransient once the budget is spent.
		return false, true
	}

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	tokenCount, cacheHit := p.streamResponse(w, resp)

	completed := time.Now()
	p.statsColl.RecordCompletion(backendURL, arrived, completed, tokenCount)
	if recorder, ok := p.policy.(OutcomeRecorder); ok {
		recorder.RecordOutcome(fp, cacheHit)
	}

	return true, false
}

func buildTarget(backendURL string, r *http.Request) string {
	target := strings.TrimRight(backendURL, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	return target
}

func applyHandshake(headers http.Header, hs *routing.Handshake) {
	if hs == nil {
		return
	}
	headers.Set(handshakeIDHeader, hs.ID)
	headers.Set(handshakeRoleHeader, hs.Role)
	headers.Set(handshakePeerHeader, hs.PeerURL)
	headers.Set(handshakeBufferHeader, strconv.Itoa(hs.BufferSize))
}

// streamResponse copies resp.Body to w, flushing after every write when
// possible so the client sees tokens as they arrive, and returns a rough
// completion-token count plus whether the backend reported a KV-cache hit.
func (p *Proxy) streamResponse(w http.ResponseWriter, resp *http.Response) (tokenCount int, cacheHit bool) {
	cacheHit = resp.Header.Get("X-Kv-Cache-Hit") == "true"

	flusher, canFlush := w.(http.Flusher)
	isSSE := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")

	if !isSSE {
		buf, _ := io.ReadAll(resp.Body)
		_, _ = w.Write(buf)
		var u usageResponse
		if json.Unmarshal(buf, &u) == nil {
			tokenCount = u.Usage.CompletionTokens
		}
		return tokenCount, cacheHit
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		_, _ = w.Write(line)
		_, _ = w.Write([]byte("\n"))
		if canFlush {
			flusher.Flush()
		}
		if bytes.HasPrefix(line, []byte("data:")) && !bytes.Contains(line, []byte("[DONE]")) {
			tokenCount++
		}
	}
	return tokenCount, cacheHit
}

func (p *Proxy) logError(msg, backendURL string, err error) {
	if p.log == nil {
		return
	}
	p.log.ErrorWithErr("", msg, err, map[string]interface{}{"backend": backendURL})
}

func excludeURLs(endpoints []registry.Endpoint, excluded map[string]bool) []registry.Endpoint {
	if len(excluded) == 0 {
		return endpoints
	}
	var out []registry.Endpoint
	for _, e := range endpoints {
		if !excluded[e.URL] {
			out = append(out, e)
		}
	}
	return out
}

func isTransientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "EOF")
}
