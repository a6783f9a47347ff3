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

import "hash/fnv"

// Fingerprint is the derived, request-scoped routing key. It is never
// stored past the lifetime of the request it describes.
type Fingerprint struct {
	Model             string
	SessionKey        string
	WorkflowID        string
	AgentID           string
	WorkflowPriority  int
	PromptPrefixHash  string
	ContextSharing    string
}

// HasWorkflow reports whether the fingerprint carries workflow metadata.
func (f Fingerprint) HasWorkflow() bool {
	return f.WorkflowID != ""
}

// HashPromptPrefix returns a stable 64-bit hash of the first prefixLen
// bytes of prompt, used as the cache-aware policy's lookup key. Truncating
// to a fixed prefix length means requests sharing a long common preamble
// produce the same hash even once they diverge later in the prompt.
func HashPromptPrefix(prompt string, prefixLen int) string {
	if prefixLen > 0 && len(prompt) > prefixLen {
		prompt = prompt[:prefixLen]
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(prompt))
	return fnvHex(h.Sum64())
}

func fnvHex(v uint64) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hex[v&0xf]
		v >>= 4
	}
	return string(b)
}

// hashSessionKey maps an arbitrary session key into [0, mod).
func hashSessionKey(key string, mod int) int {
	if mod <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(mod))
}
