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

/*
Package registry maintains the router's live view of inference engine
endpoints.

# Overview

The Registry holds an immutable, copy-on-write snapshot of Endpoints behind
an atomic pointer. Exactly one writer mutates the snapshot at a time (the
discovery goroutine, whether static or controller-polled); every reader —
routing policies, the proxy, the stats collector — takes a consistent view
without ever blocking on a lock.

# Discovery Modes

Static discovery loads a fixed endpoint list once at startup and never
changes it. Controller-polled discovery queries a cluster-controller HTTP
endpoint on a fixed interval and diff-updates the snapshot; a failed poll
is logged and the previous snapshot is retained, except during an initial
cold-start grace period where an empty controller response is treated as
"not ready yet" rather than "discovered zero backends".

# Removal Events

Endpoint removal triggers a caller-supplied callback so the workflow
manager can clear pins pointing at a URL that no longer exists, without the
Registry knowing anything about workflows.
*/
package registry
