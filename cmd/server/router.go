package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gamehandler "github.com/botdiril/botdiril-game-backend/internal/game/handler"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/httputil"
	request "github.com/botdiril/botdiril-game-backend/pkg/platform/middleware/request"
	"github.com/botdiril/botdiril-game-backend/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

type healthCheck struct {
	name  string
	check func(context.Context) error
}

type routerDeps struct {
	logger         *slog.Logger
	registry       *prometheus.Registry
	game           *gamehandler.Handler
	health         []healthCheck
	requestTimeout time.Duration
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(request.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(request.Logger(deps.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)

	r.Get("/version", handleVersion)
	r.Get("/healthz", handleHealth(deps.health, deps.logger))
	r.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{Registry: deps.registry}))

	r.Group(func(r chi.Router) {
		if deps.requestTimeout > 0 {
			r.Use(chimiddleware.Timeout(deps.requestTimeout))
		}
		deps.game.Register(r)
	})
	return r
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(version))
}

func handleHealth(checks []healthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"dependency", c.name,
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				status[c.name] = "down"
				healthy = false
				continue
			}
			status[c.name] = "ok"
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, status)
	}
}
