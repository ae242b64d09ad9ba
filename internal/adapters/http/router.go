package http

import (
	"context"

	"github.com/dkeye/LocShare/internal/adapters/signal"
	"github.com/dkeye/LocShare/internal/app"
	"github.com/dkeye/LocShare/internal/config"
	"github.com/dkeye/LocShare/internal/metrics"
	transport "github.com/dkeye/LocShare/internal/transport/http"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Registry *app.Registry
	Coord    *app.Coordinator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// with no trusted proxies ClientIP is the socket peer, so forwarded
	// headers cannot dodge per-client limits
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("trusted proxies")
	}
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LocShareSession", store))
	r.Use(ClientTokenMiddleware())

	rooms := transport.NewRoomHandler(deps.Registry, cfg.PublicBaseURL, cfg.StaticPath)

	r.GET("/", transport.Health)
	r.Static("/public", cfg.StaticPath)
	r.GET("/r/:token", rooms.ServeApp)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("base_url", cfg.PublicBaseURL).Msg("router setup")

	api := r.Group("/api")

	create := []gin.HandlerFunc{rooms.CreateRoom}
	if cfg.CreateRate > 0 {
		create = append([]gin.HandlerFunc{RateLimitMiddleware(NewClientLimiter(cfg.CreateRate, cfg.CreateBurst))}, create...)
	}
	api.POST("/rooms", create...)

	ctrl := signal.NewSignalWSController(
		deps.Coord,
		signal.NewRoomRateLimiter(cfg.JoinLimit, cfg.JoinWindow),
		deps.Metrics,
		signal.Options{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			SendBuffer: cfg.SendBuffer,
		},
	)
	api.GET("/ws", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
