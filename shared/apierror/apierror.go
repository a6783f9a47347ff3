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

// Package apierror defines the router's request-path error taxonomy and its
// mapping onto HTTP status codes.
package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is a stable, machine-readable error classification surfaced to
// clients in the response body so they can distinguish retryable from
// non-retryable failures.
type Kind string

// Note: a 4xx from a backend is forwarded to the client unchanged by
// writing resp.StatusCode directly (see proxy.forwardLeg); there is no
// "permanent upstream error" Kind here because the proxy never wraps that
// case as a router-originated error, it just passes the backend's own
// status and body through.
const (
	NoBackendForModel   Kind = "no_backend_for_model"
	AllBackendsUnhealthy Kind = "all_backends_unhealthy"
	UpstreamTransient   Kind = "upstream_transient"
	QueueFull           Kind = "queue_full"
	UnknownWorkflow     Kind = "unknown_workflow"
	UnknownAgent        Kind = "unknown_agent"
	MisconfiguredRoute  Kind = "misconfigured_route"
	DiscoveryDegraded   Kind = "discovery_degraded"
	InvalidRequest      Kind = "invalid_request"
	Internal            Kind = "internal"
)

// statusByKind is the single source of truth for kind → HTTP status.
var statusByKind = map[Kind]int{
	NoBackendForModel:    http.StatusServiceUnavailable,
	AllBackendsUnhealthy: http.StatusServiceUnavailable,
	UpstreamTransient:    http.StatusBadGateway,
	QueueFull:            http.StatusTooManyRequests,
	UnknownWorkflow:      http.StatusNotFound,
	UnknownAgent:         http.StatusNotFound,
	MisconfiguredRoute:   http.StatusNotImplemented,
	DiscoveryDegraded:    http.StatusServiceUnavailable,
	InvalidRequest:       http.StatusBadRequest,
	Internal:             http.StatusInternalServerError,
}

// Error is a typed request-path error carrying a stable Kind alongside a
// human-readable message and optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code this error kind maps onto.
func (e *Error) Status() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Body is the wire shape written to the client on a request-path error.
type Body struct {
	Error struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteJSON writes the error as a JSON body with the status its Kind maps to.
// Unrecognized error values are reported as Internal/500 without leaking
// their Go error string to the client.
func WriteJSON(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = &Error{Kind: Internal, Message: "internal error"}
	}

	if apiErr.Kind == QueueFull {
		w.Header().Set("X-Retry-Reason", string(QueueFull))
	}

	var body Body
	body.Error.Kind = apiErr.Kind
	body.Error.Message = apiErr.Message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status())
	_ = json.NewEncoder(w).Encode(body)
}
