package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/pawpantry/pawpantry-go/internal/middleware"
)

// RouterConfig wires the web client routes.
type RouterConfig struct {
	Gate     *Gate
	Pages    *PageHandler
	Products *ProductsProxy
	DevMode  bool
}

// NewRouter builds the web client router. Every request passes the Gate.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(cfg.DevMode))
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(cfg.Gate.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/", cfg.Pages.Home)
	r.Get("/login", cfg.Pages.LoginForm)
	r.Post("/login", cfg.Pages.Login)
	r.Get("/register", cfg.Pages.RegisterForm)
	r.Post("/register", cfg.Pages.Register)
	r.Get("/forgot-password", cfg.Pages.ForgotPasswordForm)
	r.Post("/forgot-password", cfg.Pages.ForgotPassword)
	r.Get("/reset-password", cfg.Pages.ResetPasswordForm)
	r.Post("/reset-password", cfg.Pages.ResetPassword)
	r.Get("/account", cfg.Pages.Account)
	r.Post("/account/password", cfg.Pages.ChangePassword)
	r.Post("/logout", cfg.Pages.Logout)

	v1 := http.StripPrefix("/api/v1", cfg.Products)
	legacy := http.StripPrefix("/api", cfg.Products)
	r.Handle("/api/v1/products", v1)
	r.Handle("/api/v1/products/*", v1)
	r.Handle("/api/products", legacy)
	r.Handle("/api/products/*", legacy)

	return r
}
