package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinic-console/internal/access"
	"clinic-console/internal/config"
	"clinic-console/internal/handler"
	"clinic-console/internal/middleware"
)

type Handlers struct {
	Session   *handler.SessionHandler
	Password  *handler.PasswordHandler
	View      *handler.ViewHandler
	WebSocket http.Handler
}

// guardedRoutes are the views that sit behind the access gate.
var guardedRoutes = []access.Route{
	access.RouteDashboard,
	access.RoutePatients,
	access.RouteAppointments,
	access.RouteProcedures,
	access.RouteUsers,
	access.RouteAudit,
	access.RouteProfile,
	access.RouteChangePassword,
}

func New(cfg *config.Config, gate *access.Gate, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// The websocket stream is long lived and must stay outside Timeout.
	if h.WebSocket != nil {
		r.Get("/ws", h.WebSocket.ServeHTTP)
	}

	r.Group(func(views chi.Router) {
		views.Use(middleware.Timeout(cfg.RequestTimeout))

		views.Get(string(access.RouteLogin), h.View.Login)
		for _, route := range guardedRoutes {
			views.With(middleware.Guard(gate, route)).Get(string(route), h.View.Route)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/session", func(s chi.Router) {
			s.Get("/", h.Session.Get)
			s.Post("/login", h.Session.Login)
			s.Post("/logout", h.Session.Logout)

			s.Get("/password", h.Password.Status)
			s.Post("/password", h.Password.Submit)
			s.Post("/password/open", h.Password.Open)
			s.Post("/password/dismiss", h.Password.Dismiss)
		})

		api.Get("/navigation", h.Session.Navigation)
	})

	return r
}
