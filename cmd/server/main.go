// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dispatch-server/internal/common/logging"
	"dispatch-server/internal/config"
	"dispatch-server/internal/db"
	"dispatch-server/internal/service"
	"dispatch-server/internal/service/modules/system"
	"dispatch-server/internal/service/plugins"
	"dispatch-server/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/server.yaml", "server config path")
	flag.Parse()

	cfg, err := config.LoadServer(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) error {
	handler := service.NewServiceHandler(cfg.ServiceName,
		service.WithLogger(logger),
		service.WithTimeouts(cfg.SoftTimeout(), cfg.HardTimeout()),
	)

	if limiter := plugins.NewRateLimit(cfg.RateLimit); limiter != nil {
		if err := handler.Use(limiter.Hook()); err != nil {
			return err
		}
	}

	metrics, err := plugins.NewMetrics(prometheus.DefaultRegisterer, "dispatch")
	if err != nil {
		return err
	}
	if err := handler.Use(metrics.Hook()); err != nil {
		return err
	}

	var stats system.StatsLoader
	if cfg.Redis.Addr != "" {
		client, err := db.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		db.StartHealthCheck(ctx, client, cfg.Redis.Addr, logger, 10*time.Second)

		dao := db.NewStatsDao(client, cfg.Redis.StatsKeyPrefix)
		if err := handler.Use(plugins.NewStats(dao).Hook()); err != nil {
			return err
		}
		stats = dao
	}
	handler.Extend(system.New(logger, stats))

	srv := service.NewServer(handler, service.WithLogger(logger))
	errCh := make(chan error, 3)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", plugins.Handler(prometheus.DefaultGatherer))
		go serveHTTP(ctx, cfg.MetricsAddr, mux, logger, errCh)
	}
	if cfg.WSAddr != "" {
		go serveHTTP(ctx, cfg.WSAddr, service.NewWSServer(ctx, srv, false), logger, errCh)
	}
	if cfg.ListenAddr != "" {
		netServer := service.NewNetServer(srv, transport.ConnOptions{
			MaxFrameSize: cfg.MaxFrameSize,
			ReadTimeout:  cfg.ReadTimeout(),
		})
		go func() { errCh <- netServer.ListenAndServe(ctx, cfg.ListenAddr) }()
	}

	logger.Info("service started",
		zap.String("service", cfg.ServiceName),
		zap.Strings("apis", handler.Names()),
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
		<-ctx.Done()
		return nil
	}
}

func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *zap.Logger, errCh chan<- error) {
	hs := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("network", "http"), zap.String("addr", addr))
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- err
	}
}
