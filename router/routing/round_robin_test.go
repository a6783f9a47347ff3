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

func TestRoundRobinFairness(t *testing.T) {
	p := NewRoundRobin()
	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}, {URL: "C"}}

	var got []string
	for i := 0; i < 12; i++ {
		d, err := p.Choose(context.Background(), candidates, Fingerprint{Model: "m"})
		require.NoError(t, err)
		got = append(got, d.URL)
	}

	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A", "B", "C", "A", "B", "C"}, got)
}

func TestRoundRobinRejectsEmptyCandidates(t *testing.T) {
	p := NewRoundRobin()
	_, err := p.Choose(context.Background(), nil, Fingerprint{})
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRoundRobinSeparateCursorsPerModel(t *testing.T) {
	p := NewRoundRobin()
	candidates := []registry.Endpoint{{URL: "A"}, {URL: "B"}}

	d1, _ := p.Choose(context.Background(), candidates, Fingerprint{Model: "m1"})
	d2, _ := p.Choose(context.Background(), candidates, Fingerprint{Model: "m2"})

	assert.Equal(t, "A", d1.URL)
	assert.Equal(t, "A", d2.URL)
}
