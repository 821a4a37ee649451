// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

// Package debug serves the operational endpoints of a credshare process:
// Prometheus metrics, liveness/readiness probes and pprof.
package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	checksMu sync.RWMutex
	checks   = make(map[string]func() error)

	handlersMu sync.RWMutex
	handlers   = make(map[string]http.Handler)

	// Global registry for custom metrics
	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// AddReadyCheck registers a named dependency check. /ready reports 503 while
// any check returns an error, and lists the failing checks in the body.
func AddReadyCheck(name string, check func() error) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = check
}

// RemoveReadyCheck drops a previously registered check.
func RemoveReadyCheck(name string) {
	checksMu.Lock()
	defer checksMu.Unlock()
	delete(checks, name)
}

// Readiness returns whether the process is ready plus the failing checks.
func Readiness() (bool, map[string]string) {
	failures := make(map[string]string)
	if !ready.Load() {
		failures["process"] = "not ready"
	}

	checksMu.RLock()
	defer checksMu.RUnlock()
	for name, check := range checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}
	return len(failures) == 0, failures
}

// RegisterHandler registers a custom handler on the debug mux.
// Must be called before GetMux() to be included.
func RegisterHandler(pattern string, handler http.Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[pattern] = handler
}

// Registry returns the Prometheus registry for registering custom metrics.
// Metrics registered here will be exported on /metrics alongside default metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ok, failures := Readiness()
		if ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		names := make([]string, 0, len(failures))
		for name := range failures {
			names = append(names, name)
		}
		sort.Strings(names)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"failing":  names,
			"failures": failures,
		})
	})

	handlersMu.RLock()
	defer handlersMu.RUnlock()
	for pattern, handler := range handlers {
		mux.Handle(pattern, handler)
	}

	return mux
}
