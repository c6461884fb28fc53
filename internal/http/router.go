package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter mounts the BFF API under /api/v1 and wraps it in an OpenTelemetry handler.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(h.timeout + 5*time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)
		r.Use(BearerTokenMiddleware)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{identity}", h.ReplaceItem)
			r.Post("/items/{identity}/decrement", h.DecrementItem)
			r.Delete("/items/{identity}", h.RemoveItem)
		})

		r.With(RequireToken).Post("/checkout", h.Checkout)

		r.Route("/payments/{txId}", func(r chi.Router) {
			r.Get("/", h.GetPayment)
			r.Delete("/", h.LeavePayment)
			r.Post("/navigation", h.Navigate)
			r.Post("/retry", h.RetryPayment)
			r.Post("/acknowledge", h.AcknowledgePayment)
		})

		r.Post("/session/logout", h.Logout)
	})

	return otelhttp.NewHandler(r, "checkout-bff")
}
