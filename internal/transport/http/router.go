package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-whatsapp-otp/internal/application/auth"
	"github.com/go-whatsapp-otp/internal/application/role"
	"github.com/go-whatsapp-otp/internal/config"
	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/transport/http/handler"
	appmiddleware "github.com/go-whatsapp-otp/internal/transport/http/middleware"
	"github.com/redis/go-redis/v9"
)

// Deps holds the services and infrastructure the router wires together.
type Deps struct {
	Auth    auth.Service
	Roles   role.Service
	Tokens  appmiddleware.TokenVerifier
	Redis   redis.Cmdable
	Channel handler.ChannelState
	Log     *slog.Logger
}

// Router is the application's HTTP handler.
type Router struct {
	http.Handler
	limiters []*appmiddleware.RateLimiter
}

// Close stops the rate limiters' cleanup goroutines.
func (r *Router) Close() {
	for _, l := range r.limiters {
		l.Stop()
	}
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) *Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	otpRL := appmiddleware.PerMinute(3, "Too many OTP requests. Please try again later")
	loginRL := appmiddleware.PerMinute(5, "Too many attempts. Please try again later")

	authMw := appmiddleware.Auth(deps.Tokens, deps.Log)
	devices := appmiddleware.NewDeviceTracker(deps.Redis, deps.Log)

	authH := handler.NewAuthHandler(deps.Auth, deps.Log)
	roleH := handler.NewRoleHandler(deps.Roles, deps.Log)
	healthH := handler.NewHealthHandler(deps.Channel)

	r.Get("/health", healthH.Check)

	authRoutes := func(r chi.Router) {
		r.With(loginRL.Limit).Post("/register", authH.Register)
		r.With(loginRL.Limit).Post("/login", authH.Login)
		r.With(otpRL.Limit).Post("/verify-otp", authH.VerifyOTP)
	}
	authRoutes(r)
	r.Route("/api/auth", func(r chi.Router) {
		authRoutes(r)
		r.With(authMw, devices.Track).Get("/me", authH.Me)
	})

	r.Route("/api/roles", func(r chi.Router) {
		r.Use(authMw, devices.Track)

		r.With(appmiddleware.RequireRole(domain.RoleAdmin)).Post("/assign-role", roleH.Assign)
		r.With(appmiddleware.RequireRole(domain.RoleAdmin)).Patch("/approve/{phoneNumber}", roleH.Approve)
		r.With(appmiddleware.RequireRole(domain.RoleSuperAdmin)).Patch("/ban/{phoneNumber}", roleH.Ban)
	})

	return &Router{Handler: r, limiters: []*appmiddleware.RateLimiter{otpRL, loginRL}}
}
