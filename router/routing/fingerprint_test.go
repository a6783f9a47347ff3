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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPromptPrefixStableForSharedPrefix(t *testing.T) {
	a := HashPromptPrefix("you are a helpful assistant. What is 2+2?", 20)
	b := HashPromptPrefix("you are a helpful assistant. What is the capital of France?", 20)
	assert.Equal(t, a, b)
}

func TestHashPromptPrefixDiffersOnDifferentPrefix(t *testing.T) {
	a := HashPromptPrefix("you are a helpful assistant.", 10)
	b := HashPromptPrefix("translate this sentence.", 10)
	assert.NotEqual(t, a, b)
}

func TestHasWorkflow(t *testing.T) {
	assert.True(t, Fingerprint{WorkflowID: "w1"}.HasWorkflow())
	assert.False(t, Fingerprint{}.HasWorkflow())
}
