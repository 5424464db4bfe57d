package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/ntarasau/vapeshop-backend/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))
	r.Use(httprate.LimitByIP(100, 15*time.Minute))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.GetProducts)
		r.Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
			h.GetProduct(w, r, chi.URLParam(r, "id"))
		})
		r.Get("/categories", h.GetCategories)
		r.Post("/orders", h.CreateOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.AdminLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.adminAuth.Middleware)

				r.Get("/products", h.AdminGetProducts)
				r.Post("/products", h.AdminCreateProduct)
				r.Put("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
					h.AdminUpdateProduct(w, r, chi.URLParam(r, "id"))
				})
				r.Delete("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
					h.AdminDeleteProduct(w, r, chi.URLParam(r, "id"))
				})
				r.Put("/products/{id}/flavors/{flavor}/stock", func(w http.ResponseWriter, r *http.Request) {
					h.AdminSetFlavorStock(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "flavor"))
				})

				r.Get("/orders", h.AdminGetOrders)
				r.Put("/orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
					h.AdminUpdateOrderStatus(w, r, chi.URLParam(r, "id"))
				})

				r.Get("/users", h.AdminGetUsers)
				r.Get("/stats", h.AdminGetStats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
