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
	"fmt"

	"github.com/google/uuid"

	"axonflow/router/router/registry"
)

// DisaggregatedPrefill routes the prefill and decode phases of a request
// to two different engine subsets, chosen from the same candidate list by
// label. Each phase is chosen by its own sub-policy from its labeled subset;
// no workflow pin is applied to either phase.
type DisaggregatedPrefill struct {
	prefillPicker Policy
	decodePicker  Policy
	prefillLabel  string // label key identifying prefill engines, default "role"
	prefillValue  string // default "prefill"
	decodeValue   string // default "decode"
	bufferSize    int
}

func NewDisaggregatedPrefill(prefillPicker, decodePicker Policy, labelKey, prefillValue, decodeValue string, bufferSize int) *DisaggregatedPrefill {
	if labelKey == "" {
		labelKey = "role"
	}
	if prefillValue == "" {
		prefillValue = "prefill"
	}
	if decodeValue == "" {
		decodeValue = "decode"
	}
	if bufferSize <= 0 {
		bufferSize = 1 << 20
	}
	return &DisaggregatedPrefill{
		prefillPicker: prefillPicker,
		decodePicker:  decodePicker,
		prefillLabel:  labelKey,
		prefillValue:  prefillValue,
		decodeValue:   decodeValue,
		bufferSize:    bufferSize,
	}
}

func (p *DisaggregatedPrefill) Choose(ctx context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error) {
	prefillSet := filterByLabel(candidates, p.prefillLabel, p.prefillValue)
	decodeSet := filterByLabel(candidates, p.prefillLabel, p.decodeValue)

	if len(prefillSet) == 0 || len(decodeSet) == 0 {
		return Decision{}, fmt.Errorf("%w: need at least one %q and one %q labeled backend", ErrNoCandidates, p.prefillValue, p.decodeValue)
	}

	prefillDecision, err := p.prefillPicker.Choose(ctx, prefillSet, fp)
	if err != nil {
		return Decision{}, err
	}
	decodeDecision, err := p.decodePicker.Choose(ctx, decodeSet, fp)
	if err != nil {
		return Decision{}, err
	}

	handshakeID := uuid.NewString()
	return Decision{
		URL:       prefillDecision.URL,
		DecodeURL: decodeDecision.URL,
		PrefillHandshake: &Handshake{
			ID:         handshakeID,
			Role:       "sender",
			PeerURL:    decodeDecision.URL,
			BufferSize: p.bufferSize,
		},
		DecodeHandshake: &Handshake{
			ID:         handshakeID,
			Role:       "receiver",
			PeerURL:    prefillDecision.URL,
			BufferSize: p.bufferSize,
		},
	}, nil
}

func filterByLabel(candidates []registry.Endpoint, key, value string) []registry.Endpoint {
	var out []registry.Endpoint
	for _, c := range candidates {
		if c.HasLabel(key, value) {
			out = append(out, c)
		}
	}
	return out
}
