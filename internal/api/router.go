package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/rangeos/engine/internal/api/handlers"
	mw "github.com/rangeos/engine/internal/api/middleware"
	"github.com/rangeos/engine/internal/metrics"
	"github.com/rangeos/engine/internal/mockapi"
)

type Dependencies struct {
	// Version is the API version path segment, e.g. "v1".
	Version string
	// AuthSecret enables bearer auth on the versioned routes when set.
	AuthSecret  []byte
	AuthIssuer  string
	CORSOrigins []string

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxy  bool
	RateLimiter *mw.RateLimiter
	Metrics     *metrics.Metrics

	Health   *handlers.HealthHandler
	Fixtures *mockapi.Server
	UIState  *handlers.UIStateHandler
}

func NewRouter(dep Dependencies) http.Handler {
	if dep.Version == "" {
		dep.Version = "v1"
	}
	if dep.Health == nil {
		dep.Health = handlers.NewHealthHandler()
	}

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	if dep.TrustProxy {
		r.Use(chimid.RealIP)
	}
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS(dep.CORSOrigins...))
	if dep.Metrics != nil {
		r.Use(dep.Metrics.Middleware)
	}
	if dep.RateLimiter != nil {
		r.Use(dep.RateLimiter.Middleware)
	}
	r.Use(chimid.Compress(5))

	r.Get("/healthz", dep.Health.Liveness)
	r.Get("/readyz", dep.Health.Readiness)
	if dep.Metrics != nil {
		r.Handle("/metrics", dep.Metrics.Handler())
	}

	r.Route("/"+dep.Version, func(v chi.Router) {
		v.Group(func(protected chi.Router) {
			if len(dep.AuthSecret) > 0 {
				protected.Use(mw.Auth(dep.AuthSecret, dep.AuthIssuer))
			} else {
				protected.Use(mw.Anonymous)
			}

			if dep.Fixtures != nil {
				dep.Fixtures.Register(protected)
			}
			if dep.UIState != nil {
				protected.Route("/ui", dep.UIState.Routes)
			}
		})
	})

	return r
}
