package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/pedidos", func(r chi.Router) {
		r.Get("/", handler.listOrders)
		r.Post("/", handler.createOrder)
		r.Post("/generar", handler.submitOrder)
		r.Get("/mios", handler.listOwnedOrders)
		r.Get("/todos", handler.listAllOrders)

		r.Get("/{id}", handler.getOrder)
		r.Put("/{id}", handler.updateOrder)
		r.Delete("/{id}", handler.deleteOrder)
		r.Put("/{id}/finalizar", handler.finalizeOrder)
	})
	return r
}
