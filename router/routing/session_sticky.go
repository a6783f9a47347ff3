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

	"axonflow/router/router/registry"
)

// SessionSticky picks a backend deterministically from the session key, so
// a fixed Registry always routes one session to the same engine. It keeps
// no state of its own: the mapping is not migrated across endpoint churn,
// so a request may land on a different engine the first time the
// candidate set's size changes.
type SessionSticky struct{}

func NewSessionSticky() *SessionSticky {
	return &SessionSticky{}
}

func (p *SessionSticky) Choose(_ context.Context, candidates []registry.Endpoint, fp Fingerprint) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoCandidates
	}
	if fp.SessionKey == "" {
		return Decision{URL: candidates[0].URL}, nil
	}
	idx := hashSessionKey(fp.SessionKey, len(candidates))
	return Decision{URL: candidates[idx].URL}, nil
}
