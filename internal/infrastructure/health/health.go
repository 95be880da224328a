// Package health builds the service's non-execution HTTP surface:
// liveness/readiness probes and the prometheus scrape endpoint. Routing
// uses go-chi/chi with go-chi/cors, the router the teacher's go.mod
// already depends on for this surface.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency (database, redis) is reachable.
type Checker func() error

// NewRouter builds the health/metrics router. readyChecks are run on
// every /readyz request; a failing check reports 503 with its name.
func NewRouter(readyChecks map[string]Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		failures := map[string]string{}
		for name, check := range readyChecks {
			if err := check(); err != nil {
				failures[name] = err.Error()
			}
		}
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failures": failures})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
