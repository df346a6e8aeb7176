// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flock/pkg/platform/httputil"
	"flock/pkg/platform/middleware/auth"
	request "flock/pkg/platform/middleware/request"
	"flock/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes on the authenticated /api/v1 group.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports a dependency failure. Nil checks are skipped.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Logger    *slog.Logger
	Validator auth.JWTValidator
	Modules   []Registrar
	Realtime  http.Handler
	Health    map[string]HealthCheck
}

// NewRouter wires the middleware chain, the versioned API, the WebSocket
// endpoint and the operational endpoints.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.Logger(deps.Logger))

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, deps.Logger))
		for _, m := range deps.Modules {
			m.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if resp.Checks == nil {
				resp.Checks = make(map[string]string, len(checks))
			}
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
