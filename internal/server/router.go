package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/franksrp-ld/ssf/internal/handlers"
	"github.com/franksrp-ld/ssf/internal/middleware"
)

// NewRouter constructs a ServeMux with the relay's routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Intake boundary for the poller and webhook-style callers
	mux.HandleFunc("/intake/lookout", h.Intake)

	// SSF discovery and published key set
	mux.HandleFunc("/.well-known/ssf-configuration", h.Discovery)
	mux.HandleFunc("/jwks.json", h.JWKS)

	// Health and observability
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/status", h.Status)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
