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

func TestDisaggregatedPrefillSelectsOnePerRole(t *testing.T) {
	p := NewDisaggregatedPrefill(NewRoundRobin(), NewRoundRobin(), "role", "prefill", "decode", 0)

	candidates := []registry.Endpoint{
		{URL: "P1", Labels: map[string]string{"role": "prefill"}},
		{URL: "P2", Labels: map[string]string{"role": "prefill"}},
		{URL: "D1", Labels: map[string]string{"role": "decode"}},
		{URL: "D2", Labels: map[string]string{"role": "decode"}},
	}

	d, err := p.Choose(context.Background(), candidates, Fingerprint{Model: "m"})
	require.NoError(t, err)

	assert.Contains(t, []string{"P1", "P2"}, d.URL)
	assert.Contains(t, []string{"D1", "D2"}, d.DecodeURL)
	require.NotNil(t, d.PrefillHandshake)
	require.NotNil(t, d.DecodeHandshake)
	assert.Equal(t, "sender", d.PrefillHandshake.Role)
	assert.Equal(t, "receiver", d.DecodeHandshake.Role)
	assert.Equal(t, d.PrefillHandshake.ID, d.DecodeHandshake.ID)
	assert.Equal(t, d.DecodeURL, d.PrefillHandshake.PeerURL)
	assert.Equal(t, d.URL, d.DecodeHandshake.PeerURL)
}

func TestDisaggregatedPrefillFailsWithoutBothRoles(t *testing.T) {
	p := NewDisaggregatedPrefill(NewRoundRobin(), NewRoundRobin(), "role", "prefill", "decode", 0)

	candidates := []registry.Endpoint{{URL: "P1", Labels: map[string]string{"role": "prefill"}}}
	_, err := p.Choose(context.Background(), candidates, Fingerprint{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}
