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

package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	promRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_router_requests_total",
			Help: "Total number of completion requests handled by the router, by HTTP status class",
		},
		[]string{"status"},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "axonflow_router_request_duration_milliseconds",
			Help:    "Request handling duration in milliseconds, by route",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(promRequestsTotal)
	prometheus.MustRegister(promRequestDuration)
}

// recordMetrics wraps next, recording request count and latency for every
// response without altering what next writes.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		promRequestDuration.WithLabelValues(r.URL.Path).Observe(float64(time.Since(started).Milliseconds()))
		promRequestsTotal.WithLabelValues(statusClass(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// statszResponse is the legacy JSON metrics snapshot kept alongside the
// Prometheus exposition endpoint for dashboards that predate it.
type statszResponse struct {
	Service         string         `json:"service"`
	EndpointCount   int            `json:"endpoint_count"`
	TotalWorkflows  int            `json:"total_workflows"`
	RoutingLogic    string         `json:"routing_logic"`
	ServiceDiscovery string        `json:"service_discovery"`
	EndpointStats   map[string]interface{} `json:"endpoint_stats"`
}

func (a *app) handleStatsz(w http.ResponseWriter, r *http.Request) {
	stats := a.statsColl.All()
	endpointStats := make(map[string]interface{}, len(stats))
	for url, s := range stats {
		endpointStats[url] = s
	}

	resp := statszResponse{
		Service:          "axonflow-router",
		EndpointCount:    a.reg.Count(),
		TotalWorkflows:   a.workflows.Count(),
		RoutingLogic:     a.cfg.RoutingLogic,
		ServiceDiscovery: a.cfg.ServiceDiscovery,
		EndpointStats:    endpointStats,
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
