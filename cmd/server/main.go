package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	router "github.com/dkeye/LocShare/internal/adapters/http"
	"github.com/dkeye/LocShare/internal/app"
	"github.com/dkeye/LocShare/internal/app/bus"
	"github.com/dkeye/LocShare/internal/app/presence"
	"github.com/dkeye/LocShare/internal/app/store"
	"github.com/dkeye/LocShare/internal/config"
	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("close")
			}
		}
	}()

	roomStore, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init room store")
	}
	closers = append(closers, closeStore)

	fanout, err := buildBus(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init bus")
	}
	closers = append(closers, fanout.Close)

	members, closePresence, err := buildPresence(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init presence")
	}
	closers = append(closers, closePresence)

	reg := app.NewRegistry(roomStore, cfg.RoomTTL(), app.WithRegistryMetrics(m))
	var policy app.Policy = app.SimplePolicy{}
	if cfg.SlowConsumer == config.SlowDrop {
		policy = app.LenientPolicy{}
	}
	coord := app.NewCoordinator(reg, fanout, policy, m, app.WithPresence(members))

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Registry: reg,
		Coord:    coord,
		Metrics:  m,
		Gatherer: promReg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		log.Info().Str("addr", addr).Str("base_url", cfg.PublicBaseURL).Msg("LocShare server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("Server exited gracefully")
}

func buildStore(ctx context.Context, cfg *config.Config) (core.RoomStore, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis store %s: %w", cfg.Store.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.Store.RedisAddr).Msg("room store: redis")
		return store.NewRedis(client, cfg.Store.KeyPrefix), client.Close, nil
	default:
		log.Info().Dur("sweep", cfg.SweepInterval).Msg("room store: memory")
		return store.NewMemory(cfg.SweepInterval), func() error { return nil }, nil
	}
}

func buildBus(ctx context.Context, cfg *config.Config) (core.Bus, error) {
	switch cfg.Bus.Driver {
	case config.BusRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Bus.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis bus %s: %w", cfg.Bus.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.Bus.RedisAddr).Msg("bus: redis")
		return bus.NewRedis(client, cfg.Bus.SubjectPrefix), nil
	case config.BusNATS:
		nc, err := bus.ConnectNATS(cfg.Bus.NatsURL, "locshare")
		if err != nil {
			return nil, fmt.Errorf("nats bus %s: %w", cfg.Bus.NatsURL, err)
		}
		log.Info().Str("url", cfg.Bus.NatsURL).Msg("bus: nats")
		return bus.NewNATS(nc, cfg.Bus.SubjectPrefix), nil
	default:
		log.Info().Msg("bus: local")
		return bus.NewLocal(), nil
	}
}

func buildPresence(ctx context.Context, cfg *config.Config) (core.Presence, func() error, error) {
	switch cfg.Presence.Driver {
	case config.PresenceRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Presence.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis presence %s: %w", cfg.Presence.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.Presence.RedisAddr).Msg("presence: redis")
		return presence.NewRedis(client, cfg.Presence.KeyPrefix), client.Close, nil
	default:
		log.Info().Msg("presence: memory")
		return presence.NewMemory(), func() error { return nil }, nil
	}
}
