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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "PORT", "ROUTING_LOGIC", "WORKFLOW_TTL", "MAX_WORKFLOWS",
		"LOAD_WEIGHT_GPU", "LOAD_WEIGHT_MEMORY", "LOAD_WEIGHT_QPS", "BATCHING_PREFERENCE",
		"STATIC_BACKENDS", "STATIC_BACKENDS_FILE", "MAILBOX_IDLE_TTL")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "roundrobin", cfg.RoutingLogic)
	assert.Equal(t, time.Hour, cfg.WorkflowTTL)
	assert.Equal(t, 1000, cfg.MaxWorkflows)
	assert.Equal(t, 0.4, cfg.LoadWeightGPU)
	assert.Equal(t, 0.3, cfg.LoadWeightMemory)
	assert.Equal(t, 0.3, cfg.LoadWeightQPS)
	assert.Equal(t, 0.8, cfg.BatchingPreference)
	assert.Empty(t, cfg.Backends)
	assert.Equal(t, cfg.WorkflowTTL, cfg.MailboxIdleTTL)
}

func TestLoadStaticBackendsFromEnv(t *testing.T) {
	clearEnv(t, "STATIC_BACKENDS", "STATIC_MODELS", "STATIC_BACKENDS_FILE")
	os.Setenv("STATIC_BACKENDS", "http://a:8000, http://b:8000")
	os.Setenv("STATIC_MODELS", "llama-3-8b")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "http://a:8000", cfg.Backends[0].URL)
	assert.Equal(t, []string{"llama-3-8b"}, cfg.Backends[0].Models)
}

func TestLoadStaticBackendsFromFile(t *testing.T) {
	clearEnv(t, "STATIC_BACKENDS", "STATIC_MODELS", "STATIC_BACKENDS_FILE")

	dir := t.TempDir()
	path := filepath.Join(dir, "backends.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
static_backends:
  - url: http://engine-1:8000
    models: ["llama-3-8b"]
    labels:
      role: prefill
`), 0o644))
	os.Setenv("STATIC_BACKENDS_FILE", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "http://engine-1:8000", cfg.Backends[0].URL)
	assert.Equal(t, "prefill", cfg.Backends[0].Labels["role"])
}

func TestLoadStaticBackendsFileMissingIsError(t *testing.T) {
	clearEnv(t, "STATIC_BACKENDS_FILE")
	os.Setenv("STATIC_BACKENDS_FILE", "/nonexistent/backends.yaml")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestResolveControllerTokenSkipsWhenPlaintextSet(t *testing.T) {
	clearEnv(t, "CONTROLLER_TOKEN", "CONTROLLER_TOKEN_SECRET_ARN")
	os.Setenv("CONTROLLER_TOKEN", "plaintext-token")
	os.Setenv("CONTROLLER_TOKEN_SECRET_ARN", "arn:aws:secretsmanager:us-east-1:1:secret:x")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plaintext-token", cfg.ControllerToken)
}
