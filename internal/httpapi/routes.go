package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/DoyleJ11/esports-draft/internal/hub"
	"github.com/DoyleJ11/esports-draft/internal/ws"
)

type Deps struct {
	Hub            *hub.Hub
	WS             *ws.Manager
	Logger         *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	a := &api{hub: d.Hub, ws: d.WS, log: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", a.Healthz)
	r.Get("/stats", a.Stats)
	r.Handle("/ws", d.WS)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", a.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.GetSession)
			r.Get("/config", a.GetConfig)
			r.Post("/config", a.Configure)
			r.Post("/start", a.Start)
			r.Post("/swap", a.SwapSides)
		})
	})

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}
