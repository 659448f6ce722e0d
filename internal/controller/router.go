package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/groovesync/server/pkg/metrics"
)

func (c *controller) Mux() http.Handler {
	r := chi.NewRouter()

	r.Use(c.requestIdMw)

	r.HandleFunc("/ws", c.ServeWS)

	r.Get("/health", c.Health)
	r.Get("/readyz", c.Ready)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(c.limiter.Middleware)

		r.Get("/room/{room-id}", c.RoomInfo)
		r.Get("/media/search", c.SearchMedia)
		r.Get("/media/resolve", c.ResolveMedia)
		r.Get("/media/charts", c.MediaCharts)
		r.Post("/auth/token", c.ExchangeToken)
	})

	return r
}
