package app

import (
	"context"
	"net/http"
	"time"

	authapi "github.com/Emjay-16/aqi-project/cmd/internal/auth/api"
	"github.com/Emjay-16/aqi-project/cmd/internal/live"
	"github.com/Emjay-16/aqi-project/cmd/internal/node"
	"github.com/Emjay-16/aqi-project/cmd/internal/telemetry"
)

// readinessCheck is one dependency probed by /readyz.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// routes groups the mounted handlers. Nil members are skipped.
type routes struct {
	auth      *authapi.Handler
	nodes     *node.Handler
	telemetry *telemetry.Handler
	live      *live.Gateway
	metrics   http.Handler

	dbEnabled bool
	ready     []readinessCheck
}

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !rt.dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		for _, rc := range rt.ready {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := rc.check(ctx)
			cancel()
			if err != nil {
				http.Error(w, rc.name+" not ready", http.StatusServiceUnavailable)
				log.Info("readyz.not_ready", "dependency", rc.name, "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}

	rt.auth.Register(mux)
	rt.nodes.Register(mux)
	rt.telemetry.Register(mux)
	rt.live.Register(mux)
}

// newRouter builds the route table and, when cfg.RootPath is set, serves it
// both at "/" and under the prefix.
func newRouter(log Logger, cfg Config, rt routes) http.Handler {
	inner := http.NewServeMux()
	registerHTTP(inner, log, cfg, rt)

	if cfg.RootPath == "" {
		return inner
	}

	outer := http.NewServeMux()
	outer.Handle(cfg.RootPath+"/", http.StripPrefix(cfg.RootPath, inner))
	outer.Handle("/", inner)
	return outer
}

// wrapMiddleware applies the request chain, outermost first:
// request id, logging, security headers, CORS.
func wrapMiddleware(h http.Handler, log Logger, cfg Config, rec HTTPRecorder) http.Handler {
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, rec)
	return WithRequestID(h)
}
