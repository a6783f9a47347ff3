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
Package workflow tracks multi-agent workflow affinity: which engine a
workflow's agents are pinned to, per-workflow TTL and cache-hit counters,
and cleanup of expired workflows.

AssignEngine serializes per workflow id so two concurrent first-requests
for a brand-new workflow cannot observe different pins — the second caller
blocks on the first's per-workflow lock and then simply reads back the pin
the first caller just set.
*/
package workflow
