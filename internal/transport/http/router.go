package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mfrid/internal/platform/middleware"
	"mfrid/pkg/platform/httputil"
)

// Registrar mounts a route group on the root router.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires every route group plus /metrics. Route groups own their
// middleware chains; only CORS is applied at the root so preflight requests
// never reach a handler.
func NewRouter(gatherer prometheus.Gatherer, groups ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Not found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method)
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	for _, g := range groups {
		g.Register(r)
	}
	return r
}
