package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, pageHandler *PageHandler, maxRequestBody int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(SecurityHeaders)
	r.Use(RequestSizeLimiter(maxRequestBody))

	// JSON API
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/auth/signup", apiHandler.SignupHandler)
		r.Post("/auth/login", apiHandler.LoginHandler)
		r.Post("/auth/logout", apiHandler.LogoutHandler)
		r.Get("/products", apiHandler.ListProductsHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Chat ask: session optional (only affects logging attribution),
		// throttled per client IP.
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.WithSession)
			r.Use(apiHandler.askLimiter.middleware)
			r.Post("/ai/ask", apiHandler.AskHandler)
		})

		// Session-required routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.RequireSession)
			r.Get("/conversations", apiHandler.ConversationsHandler)
		})
	})

	// HTML pages
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	r.Get("/auth", pageHandler.AuthPage)

	// Restricted pages behind the session gate
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.SessionGate)
		r.Get("/dashboard", pageHandler.DashboardPage)
		r.Get("/products", pageHandler.ProductsPage)
		r.Get("/products/{id}", pageHandler.ProductDetailPage)
		r.Get("/conversations", pageHandler.ConversationsPage)
	})

	return r
}
