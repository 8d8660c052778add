package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NoCache marks every response as non-cacheable.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Expires", "0")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires every route. CORS is only enabled when origins are given.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(NoCache)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Public endpoints
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Handle("/metrics", promhttp.Handler())

	// Protected endpoints (require a session)
	r.Get("/", h.RequireUser(h.Index))
	r.Get("/buy", h.RequireUser(h.BuyForm))
	r.Post("/buy", h.RequireUser(h.Buy))
	r.Get("/sell", h.RequireUser(h.SellForm))
	r.Post("/sell", h.RequireUser(h.Sell))
	r.Get("/history", h.RequireUser(h.History))
	r.Get("/quote", h.RequireUser(h.QuoteForm))
	r.Post("/quote", h.RequireUser(h.Quote))
	r.Get("/ws/portfolio", h.RequireUser(h.StreamPortfolio))

	return r
}
