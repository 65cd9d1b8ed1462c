package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"postergen/internal/http/handlers"
	"postergen/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/enhance", app.Enhance)
	r.Post("/v1/posters", app.GeneratePoster)
	r.Get("/v1/history", app.HistoryList)
	r.Get("/v1/history/{id}", app.HistoryGet)

	return r
}
