package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pribylovaa/go-auth-service/internal/transport/http/handlers"
	"github.com/pribylovaa/go-auth-service/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// Metrics — наблюдатель HTTP-метрик; nil отключает сбор.
	Metrics middleware.HTTPObserver
	// RateLimiter ограничивает чувствительные ручки; nil — без ограничений.
	RateLimiter  *middleware.RateLimiter
	SecureCookie bool
	// TrustProxyHeaders включает chi RealIP; без него адрес клиента
	// берётся из соединения.
	TrustProxyHeaders bool
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc handlers.AuthService, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(middleware.Recover())
	if opts.TrustProxyHeaders {
		root.Use(chimw.RealIP)
	}
	root.Use(
		middleware.RequestID(), // до логирования: id попадает в логгер
		middleware.Logging(opts.Logger),
		middleware.Metrics(opts.Metrics),
		middleware.Timeout(opts.Timeout),
	)

	registerRoutes(root, handlers.New(svc, opts.SecureCookie), opts.RateLimiter)

	return root
}

// registerRoutes — единая точка регистрации REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, rl *middleware.RateLimiter) {
	r.Route("/auth", func(r chi.Router) {
		// Ручки, которые перебирают пароли или шлют письма, — под лимитом.
		r.Group(func(r chi.Router) {
			r.Use(rl.Handler())

			r.Post("/registration", h.Registration)
			r.Post("/login", h.Login)
			r.Post("/verify/resend", h.ResendVerification)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/password-reset/{link}", h.PasswordReset)
		})

		r.Post("/logout", h.Logout)
		r.Get("/refresh", h.Refresh)
		r.Post("/refresh", h.Refresh)
		r.Get("/verify/{link}", h.VerifyUser)
		r.Post("/validate", h.ValidateToken)
	})
}
