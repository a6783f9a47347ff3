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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	connconfig "axonflow/router/connectors/config"
)

// BackendEntry is one static backend, regardless of whether it came from
// the comma-separated flags or the YAML file.
type BackendEntry struct {
	URL    string
	Models []string
	Labels map[string]string
}

// Config is the fully resolved set of options recognized by the router,
// read from environment variables. The backend list comes from the YAML
// file named by STATIC_BACKENDS_FILE when that is set, in which case
// STATIC_BACKENDS and STATIC_MODELS are ignored.
type Config struct {
	Port string

	RoutingLogic    string // roundrobin | session | prefix | workflow_aware | disaggregated_prefill
	ServiceDiscovery string // static | k8s

	Backends []BackendEntry

	ControllerURL              string
	ControllerToken            string
	ControllerTokenSecretARN   string
	ControllerScrapeInterval   time.Duration

	SessionHeader string

	WorkflowTTL        time.Duration
	MaxWorkflows        int
	MaxMessageQueueSize int
	MailboxIdleTTL      time.Duration
	CleanupInterval     time.Duration

	BatchingPreference float64

	EngineScrapeInterval time.Duration
	RequestStatsWindow   time.Duration

	LoadWeightGPU    float64
	LoadWeightMemory float64
	LoadWeightQPS    float64
	QPSNormalization float64

	PrefillModelLabelValue string
	DecodeModelLabelValue  string
	RoleLabelKey           string

	CacheIndexRedisAddr string
	RetryBudget         int

	StatsScrapePath string
}

// Load resolves the router configuration from environment variables,
// optionally layering in a static-backends YAML file and resolving the
// cluster-controller bearer token from AWS Secrets Manager.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Port:                     getEnv("PORT", "8080"),
		RoutingLogic:             getEnv("ROUTING_LOGIC", "roundrobin"),
		ServiceDiscovery:         getEnv("SERVICE_DISCOVERY", "static"),
		ControllerURL:            os.Getenv("CONTROLLER_URL"),
		ControllerToken:          os.Getenv("CONTROLLER_TOKEN"),
		ControllerTokenSecretARN: os.Getenv("CONTROLLER_TOKEN_SECRET_ARN"),
		ControllerScrapeInterval: getDurationSeconds("DISCOVERY_POLL_INTERVAL", 10),
		SessionHeader:            getEnv("SESSION_HEADER", "X-User-Id"),
		WorkflowTTL:              getDurationSeconds("WORKFLOW_TTL", 3600),
		MaxWorkflows:             getInt("MAX_WORKFLOWS", 1000),
		MaxMessageQueueSize:      getInt("MAX_MESSAGE_QUEUE_SIZE", 1000),
		BatchingPreference:       getFloat("BATCHING_PREFERENCE", 0.8),
		EngineScrapeInterval:     getDurationSeconds("ENGINE_SCRAPE_INTERVAL", 30),
		RequestStatsWindow:       getDurationSeconds("REQUEST_STATS_WINDOW", 60),
		LoadWeightGPU:            getFloat("LOAD_WEIGHT_GPU", 0.4),
		LoadWeightMemory:         getFloat("LOAD_WEIGHT_MEMORY", 0.3),
		LoadWeightQPS:            getFloat("LOAD_WEIGHT_QPS", 0.3),
		QPSNormalization:         getFloat("QPS_NORMALIZATION", 100),
		PrefillModelLabelValue:   getEnv("PREFILL_MODEL_LABELS", "prefill"),
		DecodeModelLabelValue:    getEnv("DECODE_MODEL_LABELS", "decode"),
		RoleLabelKey:             getEnv("ROLE_LABEL_KEY", "role"),
		CacheIndexRedisAddr:      os.Getenv("CACHE_INDEX_REDIS_ADDR"),
		RetryBudget:              getInt("RETRY_BUDGET", 0),
		CleanupInterval:          getDurationSeconds("CLEANUP_INTERVAL", 60),
		StatsScrapePath:          getEnv("STATS_SCRAPE_PATH", "/stats"),
	}
	cfg.MailboxIdleTTL = getDurationSecondsOr("MAILBOX_IDLE_TTL", cfg.WorkflowTTL)

	if err := cfg.loadBackends(); err != nil {
		return nil, err
	}

	if err := cfg.resolveControllerToken(ctx); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) loadBackends() error {
	if path := os.Getenv("STATIC_BACKENDS_FILE"); path != "" {
		file, err := connconfig.LoadBackendsFile(path)
		if err != nil {
			return fmt.Errorf("loading static backends file: %w", err)
		}
		for _, b := range file.Backends {
			cfg.Backends = append(cfg.Backends, BackendEntry{URL: b.URL, Models: b.Models, Labels: b.Labels})
		}
		return nil
	}

	urls := splitCSV(os.Getenv("STATIC_BACKENDS"))
	models := splitCSV(os.Getenv("STATIC_MODELS"))
	for _, url := range urls {
		cfg.Backends = append(cfg.Backends, BackendEntry{URL: url, Models: models})
	}
	return nil
}

func (cfg *Config) resolveControllerToken(ctx context.Context) error {
	if cfg.ControllerToken != "" || cfg.ControllerTokenSecretARN == "" {
		return nil
	}

	region := getEnv("AWS_REGION", "us-east-1")
	mgr, err := connconfig.NewAWSSecretsManager(ctx, connconfig.AWSSecretsManagerOptions{Region: region, CacheTTL: 10 * time.Minute})
	if err != nil {
		return fmt.Errorf("creating secrets manager client: %w", err)
	}

	token, err := mgr.ResolveToken(ctx, cfg.ControllerTokenSecretARN)
	if err != nil {
		return fmt.Errorf("resolving controller token secret: %w", err)
	}
	cfg.ControllerToken = token
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDurationSeconds(key string, defSeconds int) time.Duration {
	return getDurationSecondsOr(key, time.Duration(defSeconds)*time.Second)
}

func getDurationSecondsOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
