package httpapi

import (
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"
)

func Router(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/alert-configs", h.UpsertAlertConfig) // POST
	mux.Handle("/metrics", promhttp.Handler())

	// Backpressure at the edge: prevents unbounded queueing when the
	// config store is saturated.
	max := mustIntEnv("BOOMWATCH_HTTP_MAX_INFLIGHT", 64)
	return withConcurrencyLimit(mux, max)
}

func mustIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// withConcurrencyLimit bounds in-flight requests with the same
// golang.org/x/sync/semaphore.Weighted gate internal/appctx uses to cap
// concurrent requests per adapter host (spec §5): TryAcquire(1) takes a
// slot without blocking, fast-failing with 503 when the gate is full
// instead of queueing.
func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 64
	}
	sem := semaphore.NewWeighted(int64(max))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sem.TryAcquire(1) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy"}`))
			return
		}
		defer sem.Release(1)
		next.ServeHTTP(w, r)
	})
}
