package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the HTTP API.
func (h *Handler) Routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)
	mux.Use(requestLogger(h.logger))
	mux.Use(cors.AllowAll().Handler)

	mux.Get("/healthz", h.healthz)

	mux.Route("/games", func(r chi.Router) {
		r.Post("/", h.createGame)
		r.Post("/join", h.joinGame)

		r.Route("/{gameID}", func(r chi.Router) {
			r.Get("/", h.getState)
			r.Get("/ws", h.stream)
			r.Get("/leaderboard", h.leaderboard)

			r.Get("/players", h.listPlayers)
			r.Patch("/players/{playerID}", h.renamePlayer)
			r.Delete("/players/{playerID}", h.removePlayer)

			r.Post("/start", h.control(h.service.Rounds.Start))
			r.Post("/pause", h.control(h.service.Rounds.Pause))
			r.Post("/resume", h.control(h.service.Rounds.Resume))
			r.Post("/skip", h.control(h.service.Rounds.Skip))
			r.Post("/expire", h.expire)

			r.Post("/answers", h.submitAnswer)
			r.Post("/questions/{questionID}/score", h.scoreQuestion)
		})
	})

	return mux
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
