package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoyleJ11/train-seat-backend/internal/config"
	"github.com/DoyleJ11/train-seat-backend/internal/coordinator"
	"github.com/DoyleJ11/train-seat-backend/internal/ws"
)

type Deps struct {
	Coordinator    *coordinator.Coordinator
	Inventory      Snapshotter
	UnitPrice      int
	OriginPatterns []string
	Redis          *redis.Client // nil disables rate limiting
	RateLimit      config.RateLimitConfig
	Logger         *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(AccessLog(d.Logger))

	// Public routes
	r.Get("/healthz", Healthz(d.Coordinator, d.Logger))

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(d.RateLimit, d.Redis, d.Logger))
		r.Get("/summary", Summary(d.Inventory, d.UnitPrice))
		r.Get("/ws", ws.Handler(d.Coordinator, d.OriginPatterns, d.Logger))
	})
	return r
}
