package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pawpantry/pawpantry-go/internal/apperr"
	"github.com/pawpantry/pawpantry-go/internal/middleware"
	"github.com/pawpantry/pawpantry-go/internal/model"
)

// RouterConfig wires the API routes.
type RouterConfig struct {
	Auth           *AuthHandler
	Verifier       middleware.TokenVerifier
	RateLimitRPS   float64
	RateLimitBurst int
	DevMode        bool
}

// NewRouter builds the API router. Public auth routes are rate limited per
// client IP; profile and password change routes require a bearer token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(cfg.DevMode))
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			r.Post("/register", cfg.Auth.HandleRegister)
			r.Post("/login", cfg.Auth.HandleLogin)
			r.Post("/forgot-password", cfg.Auth.HandleForgotPassword)
			r.Post("/reset-password", cfg.Auth.HandleResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(cfg.Verifier))
			r.Get("/me", cfg.Auth.HandleMe)
			r.Put("/me", cfg.Auth.HandleUpdateMe)
			r.Post("/change-password", cfg.Auth.HandleChangePassword)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "not found", Code: apperr.KindNotFound.Code()})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "method not allowed", Code: "METHOD_NOT_ALLOWED"})
	})

	return r
}
