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
Package router wires together the Registry, Stats Collector, Workflow
Manager, Message Bus, routing Policy, and Request Proxy into a single HTTP
service, and owns the process lifecycle: startup in dependency order and a
bounded-grace-period shutdown on SIGINT/SIGTERM.
*/
package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"axonflow/router/connectors/cacheindex"
	"axonflow/router/connectors/httpclient"
	"axonflow/router/router/api"
	"axonflow/router/router/config"
	"axonflow/router/router/mailbox"
	"axonflow/router/router/proxy"
	"axonflow/router/router/registry"
	"axonflow/router/router/routing"
	"axonflow/router/router/stats"
	"axonflow/router/router/workflow"
	"axonflow/router/shared/logger"
)

// shutdownGrace bounds how long Run waits for in-flight requests and
// background loops to drain once a shutdown signal arrives.
const shutdownGrace = 20 * time.Second

// Run loads configuration, assembles the router, and blocks serving HTTP
// until the process receives SIGINT or SIGTERM.
func Run() {
	log.Println("Starting AxonFlow Router...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	app, err := build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to assemble router: %v", err)
	}
	defer app.close()

	app.startBackground(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: app.handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("AxonFlow Router listening on port %s (routing-logic=%s, discovery=%s)", cfg.Port, cfg.RoutingLogic, cfg.ServiceDiscovery)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, draining in-flight requests")
	case err := <-errCh:
		log.Fatalf("server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown did not complete cleanly: %v", err)
	}
}

// app holds every assembled component; build() populates it in dependency
// order (Registry -> Stats Collector -> Workflow Manager -> Message Bus ->
// Policy -> Proxy -> HTTP server) and run wires HTTP on top.
type app struct {
	cfg       *config.Config
	reg       *registry.Registry
	statsColl *stats.Collector
	workflows *workflow.Manager
	bus       *mailbox.Bus
	policy    routing.Policy
	px        *proxy.Proxy
	wfAPI     *api.API
	client    *httpclient.Client
	index     cacheindex.Store
	poller    *registry.ControllerPoller
	log       *logger.Logger
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logger.New("router")}

	// Registry: static discovery populates it once and never touches it
	// again; controller-polled discovery keeps it fresh on a ticker started
	// by startBackground.
	staleAfter := time.Duration(0)
	if cfg.ServiceDiscovery == "k8s" || cfg.ControllerURL != "" {
		staleAfter = 3 * cfg.ControllerScrapeInterval
	}
	a.reg = registry.New(staleAfter)

	a.client = httpclient.New(httpclient.Options{AllowPrivateIPs: true})

	switch cfg.ServiceDiscovery {
	case "static", "":
		entries := make([]registry.StaticEntry, 0, len(cfg.Backends))
		for _, b := range cfg.Backends {
			entries = append(entries, registry.StaticEntry{URL: b.URL, Models: b.Models, Labels: b.Labels})
		}
		registry.LoadStatic(a.reg, entries)
	case "k8s":
		if cfg.ControllerURL == "" {
			return nil, fmt.Errorf("SERVICE_DISCOVERY=k8s requires CONTROLLER_URL")
		}
		tokenFn := func(context.Context) (string, error) { return cfg.ControllerToken, nil }
		a.poller = registry.NewControllerPoller(cfg.ControllerURL, a.client, cfg.ControllerScrapeInterval, tokenFn)
	default:
		return nil, fmt.Errorf("unrecognized SERVICE_DISCOVERY %q", cfg.ServiceDiscovery)
	}

	a.statsColl = stats.NewCollector(a.reg, a.client, cfg.StatsScrapePath, cfg.EngineScrapeInterval, cfg.RequestStatsWindow)

	weights := workflow.LoadWeights{GPU: cfg.LoadWeightGPU, KV: cfg.LoadWeightMemory, QPS: cfg.LoadWeightQPS, QPSNormalization: cfg.QPSNormalization, LocalityDiscount: cfg.BatchingPreference}
	a.workflows = workflow.NewManager(cfg.MaxWorkflows, weights, a.statsColl.Get)
	a.reg.OnRemoval(a.workflows.OnEndpointRemoved)

	a.bus = mailbox.NewBus(cfg.MaxMessageQueueSize)

	if cfg.CacheIndexRedisAddr != "" {
		a.index = cacheindex.NewRedisStore(cacheindex.Config{Addr: cfg.CacheIndexRedisAddr})
	}

	policy, err := buildPolicy(cfg, a)
	if err != nil {
		return nil, err
	}
	a.policy = policy

	a.px = proxy.New(a.reg, a.statsColl, a.policy, a.client, proxy.Config{
		SessionHeader: cfg.SessionHeader,
		RetryBudget:   cfg.RetryBudget,
	}, a.log)

	a.wfAPI = api.New(a.bus, a.workflows, a.reg, a.statsColl, cfg.RoutingLogic == "workflow_aware")

	return a, nil
}

// buildPolicy constructs the configured routing.Policy. workflow_aware falls
// back to prefix-cache scoring; disaggregated_prefill picks within its
// prefill and decode sub-pools by round robin.
func buildPolicy(cfg *config.Config, a *app) (routing.Policy, error) {
	prefix := routing.NewPrefixCache(a.statsColl.Get, a.index, cacheIndexTTL(cfg))

	switch cfg.RoutingLogic {
	case "roundrobin", "":
		return routing.NewRoundRobin(), nil
	case "session":
		return routing.NewSessionSticky(), nil
	case "prefix":
		return prefix, nil
	case "workflow_aware":
		return routing.NewWorkflowAware(a.workflows, prefix), nil
	case "disaggregated_prefill":
		prefillPicker := routing.NewRoundRobin()
		decodePicker := routing.NewRoundRobin()
		return routing.NewDisaggregatedPrefill(prefillPicker, decodePicker, cfg.RoleLabelKey, cfg.PrefillModelLabelValue, cfg.DecodeModelLabelValue, 1<<20), nil
	default:
		return nil, fmt.Errorf("unrecognized ROUTING_LOGIC %q", cfg.RoutingLogic)
	}
}

func cacheIndexTTL(cfg *config.Config) time.Duration {
	if cfg.WorkflowTTL > 0 {
		return cfg.WorkflowTTL
	}
	return 10 * time.Minute
}

// startBackground launches every ticker-driven loop: stats scraping,
// controller polling (if configured), and periodic workflow/mailbox
// cleanup. Each respects ctx and returns once it is cancelled.
func (a *app) startBackground(ctx context.Context) {
	go a.statsColl.Run(ctx)

	if a.poller != nil {
		go a.poller.Run(ctx, a.reg)
	}

	go a.cleanupLoop(ctx)
}

func (a *app) cleanupLoop(ctx context.Context) {
	interval := a.cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := a.workflows.Cleanup(a.cfg.WorkflowTTL)
			for _, wf := range evicted {
				a.bus.EvictWorkflow(wf)
			}
			a.bus.EvictIdle(a.cfg.MailboxIdleTTL)
		}
	}
}

func (a *app) close() {
	if a.index != nil {
		_ = a.index.Close()
	}
}

// handler assembles the full HTTP route table: health and metrics probes,
// the workflow API, and the completion proxy, wrapped in permissive CORS
// matching the teacher's development posture.
func (a *app) handler() http.Handler {
	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/statsz", a.handleStatsz).Methods(http.MethodGet)

	a.wfAPI.Register(r)

	r.PathPrefix("/v1/chat/completions").Handler(a.px).Methods(http.MethodPost)
	r.PathPrefix("/v1/completions").Handler(a.px).Methods(http.MethodPost)

	return recordMetrics(c.Handler(r))
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !a.reg.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"healthy","service":"axonflow-router"}`))
}
