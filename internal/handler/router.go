package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/marketplace-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(custommiddleware.SessionMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Мок платёжного шлюза живёт в том же процессе.
		r.Post("/pay", h.mockAPI.Pay)

		r.Get("/deliveries", h.ListDeliveries)

		r.Route("/products/{slug}", func(r chi.Router) {
			r.Get("/", h.GetProduct)
			r.Get("/price", h.GetMinPrice)
			r.Get("/reviews", h.GetReviews)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)
				r.Post("/reviews", h.AddReview)
			})
		})

		r.Get("/shops/{slug}", h.GetShop)

		r.Route("/cart", func(r chi.Router) {
			r.Use(h.authMiddleware.OptionalMiddleware)

			r.Get("/", h.GetCart)
			r.Post("/", h.AddToCart)
			r.Patch("/{productID}", h.ChangeCartItem)
			r.Delete("/{productID}", h.RemoveCartItem)
		})

		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/order", h.CreateOrder)
				r.Post("/order/delivery", h.SetOrderDelivery)
				r.Post("/order/payment", h.SetOrderPaymentMethod)
				r.Post("/order/pay", h.PayOrder)

				r.Get("/orders", h.GetOrders)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
