package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/emihleChallotteBooi/editingList/internal/api"
	"github.com/emihleChallotteBooi/editingList/internal/metrics"
	"github.com/emihleChallotteBooi/editingList/internal/session"
	"github.com/emihleChallotteBooi/editingList/internal/utils"
)

func New(log *utils.Logger, hub *session.Hub, allowedOrigins []string) http.Handler {
	h := api.NewHandlers(log, hub, allowedOrigins)
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(metrics.Middleware("collab"))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/api/v1/rooms/{roomId}", h.RoomStatus)
		r.Get("/api/v1/stats", h.Stats)
	})

	r.Get("/ws", h.CollabWS)

	return r
}
