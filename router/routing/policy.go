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
	"errors"

	"axonflow/router/router/registry"
)

// ErrNoCandidates is returned by every policy when handed an empty
// candidate list; callers translate it to apierror.NoBackendForModel.
var ErrNoCandidates = errors.New("routing: no candidate backends")

// Handshake carries the prefill/decode coordination metadata injected into
// a disaggregated request.
type Handshake struct {
	ID         string
	Role       string // "sender" or "receiver"
	PeerURL    string
	BufferSize int
}

// Decision is a policy's backend choice for one request. DecodeURL,
// PrefillHandshake and DecodeHandshake are populated only by the
// disaggregated-prefill policy.
type Decision struct {
	URL          string
	DecodeURL    string
	PrefillHandshake *Handshake
	DecodeHandshake  *Handshake
}

// Policy selects a backend for one request fingerprint from the current
// candidate set. Implementations are constructed once at startup and are
// safe for concurrent use.
type Policy interface {
	Choose(ctx context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error)
}

func urls(endpoints []registry.Endpoint) []string {
	out := make([]string, len(endpoints))
	for i, e := range endpoints {
		out[i] = e.URL
	}
	return out
}
