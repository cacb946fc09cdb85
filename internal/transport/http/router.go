// Package httptransport assembles the HTTP router: platform middleware,
// the domain analysis endpoints, and the metrics endpoint.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"domainintel/internal/analysis/handler"
	dErrors "domainintel/pkg/domain-errors"
	"domainintel/pkg/platform/httputil"
	"domainintel/pkg/platform/middleware/requestlog"
)

// NewRouter wires all public endpoints. gatherer backs /metrics.
func NewRouter(h *handler.Handler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestlog.RequestID)
	r.Use(requestlog.Logger(logger))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})

	h.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
