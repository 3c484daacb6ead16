package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/chatsync/pkg/httputil"
	"github.com/cwrk-planet/chatsync/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Current func() (Chat, bool)
	Logger  *slog.Logger
	Origins []string
}

// NewRouter собирает локальную инспекционную поверхность: состояние стора,
// метрики и ручные команды для активной сессии.
func NewRouter(d Deps) http.Handler {
	l := logger.Component(d.Logger, "http")
	origins := d.Origins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging(l))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	h := &ChatHandlers{Current: d.Current}

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/state", h.State)
	r.Post("/connect", h.Connect)
	r.Post("/messages", h.Send)

	r.Route("/conversations/{roomId}", func(rt chi.Router) {
		rt.Post("/open", h.Open)
		rt.Post("/more", h.More)
		rt.Post("/read", h.Read)
		rt.Post("/typing", h.Typing)
	})

	return r
}
