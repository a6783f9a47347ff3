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
Command router runs the AxonFlow inference request router.

The router sits in front of a pool of LLM inference engines and picks,
per request, which engine should serve it — by round robin, session
affinity, prefix/KV-cache locality, workflow-aware pinning, or a
prefill/decode disaggregated split — then proxies the request through and
exposes a small HTTP API for multi-agent workflows to pass messages to one
another.

# Usage

	router

The router takes no command-line flags; it is configured entirely through
the environment variables below.

# Environment Variables

Discovery and routing:

  - ROUTING_LOGIC: roundrobin | session | prefix | workflow_aware | disaggregated_prefill (default: roundrobin)
  - SERVICE_DISCOVERY: static | k8s (default: static)
  - STATIC_BACKENDS: comma-separated backend URLs (static discovery)
  - STATIC_MODELS: comma-separated model names served by every STATIC_BACKENDS entry
  - STATIC_BACKENDS_FILE: path to a YAML file describing backends, labels, and models
  - CONTROLLER_URL: cluster-controller endpoint to poll (k8s discovery)
  - CONTROLLER_TOKEN / CONTROLLER_TOKEN_SECRET_ARN: bearer token for CONTROLLER_URL
  - DISCOVERY_POLL_INTERVAL: seconds between controller polls (default: 10)

Workflow and mailbox:

  - SESSION_HEADER: header carrying the session-sticky key (default: X-User-Id)
  - WORKFLOW_TTL: seconds of inactivity before a workflow is evicted (default: 3600)
  - MAX_WORKFLOWS: maximum tracked workflows before LRU eviction (default: 1000)
  - MAX_MESSAGE_QUEUE_SIZE: per-mailbox capacity (default: 1000)
  - MAILBOX_IDLE_TTL: seconds before an empty mailbox is swept (default: WORKFLOW_TTL)
  - CLEANUP_INTERVAL: seconds between cleanup sweeps (default: 60)

Scoring:

  - LOAD_WEIGHT_GPU, LOAD_WEIGHT_MEMORY, LOAD_WEIGHT_QPS: workflow-aware load weights (default: 0.4/0.3/0.3)
  - QPS_NORMALIZATION: divisor bringing QPS onto the same scale as utilization (default: 100)
  - BATCHING_PREFERENCE: locality bonus for same-workflow colocation (default: 0.8)
  - ENGINE_SCRAPE_INTERVAL, REQUEST_STATS_WINDOW: seconds (default: 30, 60)
  - PREFILL_MODEL_LABELS, DECODE_MODEL_LABELS, ROLE_LABEL_KEY: label values used by disaggregated_prefill
  - CACHE_INDEX_REDIS_ADDR: optional Redis address backing the prefix-cache hint store
  - RETRY_BUDGET: additional backend attempts on transient 5xx (default: 0)

  - PORT: HTTP server port (default: 8080)

# Example

	export STATIC_BACKENDS="http://engine-1:8000,http://engine-2:8000"
	export STATIC_MODELS="llama-3-8b"
	export ROUTING_LOGIC="prefix"
	./router
*/
package main
