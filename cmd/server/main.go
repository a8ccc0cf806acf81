package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/train-seat-backend/internal/config"
	"github.com/DoyleJ11/train-seat-backend/internal/coordinator"
	"github.com/DoyleJ11/train-seat-backend/internal/httpapi"
	"github.com/DoyleJ11/train-seat-backend/internal/inventory"
	"github.com/DoyleJ11/train-seat-backend/internal/logger"
	"github.com/DoyleJ11/train-seat-backend/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The one inventory for this process; everything below gets it injected.
	inv, err := inventory.New(cfg.CoachCount, cfg.SeatsPerCoach, cfg.Train)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	opts := coordinator.Options{
		HoldTTL:             cfg.HoldTTL,
		ReleaseOnDisconnect: cfg.ReleaseOnDisconnect,
		Logger:              lg.Named("coordinator"),
	}
	if cfg.RabbitURL != "" {
		pub := notify.NewPublisher(cfg.RabbitURL, cfg.Train.TrainNumber, lg.Named("notify"))
		opts.Notifier = pub
		g.Go(func() error { return pub.Run(gctx) })
	}
	if cfg.HoldTTL > 0 {
		lg.Info("hold expiry enabled", zap.Duration("hold_ttl", cfg.HoldTTL))
	}

	coord := coordinator.New(gctx, inv, opts)

	rdb := newRedis(cfg.RedisAddr, lg)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Coordinator:    coord,
			Inventory:      inv,
			UnitPrice:      cfg.UnitPrice,
			OriginPatterns: cfg.OriginPatterns,
			Redis:          rdb,
			RateLimit:      cfg.RateLimit,
			Logger:         lg.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		lg.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("train", cfg.Train.TrainNumber),
			zap.Int("coaches", cfg.CoachCount),
			zap.Int("seats_per_coach", cfg.SeatsPerCoach))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	<-coord.Done()
	return err
}

// newRedis returns nil when addr is empty or the server does not answer, in
// which case rate limiting is off.
func newRedis(addr string, lg *zap.Logger) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("redis unavailable; rate limiting disabled", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	return client
}
