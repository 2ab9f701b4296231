// Package httptransport wires every HTTP endpoint behind the shared
// middleware stack. Handlers stay in their domain packages; this layer only
// assembles them.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authhandler "dochost/internal/auth/handler"
	"dochost/internal/content"
	defensehandler "dochost/internal/defense/handler"
	"dochost/internal/platform/health"
	"dochost/internal/platform/middleware"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger     *slog.Logger
	AdminToken string

	Auth    *authhandler.Handler
	Content *content.Handler
	Defense *defensehandler.Handler
	Health  *health.Handler

	// FakeIP reports whether test addresses are enabled and the pool to
	// draw from. Consulted per request so admin config changes apply live.
	FakeIP middleware.FakeIPProvider
}

// NewRouter wires all public and admin endpoints with middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Metadata(deps.FakeIP))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", handleIndex)

	deps.Auth.Register(r)
	deps.Content.Register(r)
	deps.Health.Register(r)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(deps.AdminToken, deps.Logger))
		deps.Defense.RegisterAdmin(admin)
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("dochost is running\n"))
}
