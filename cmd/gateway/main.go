package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/client/authclient"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/gateway"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadGateway()
	if err != nil {
		lg.Must("gateway", "error").Fatal("failed to load config", zap.Error(err))
	}

	zapLog := lg.Must("gateway", cfg.LogLevel)
	defer zapLog.Sync()

	m := metrics.New("gateway")
	limiter := ratelimit.NewPerIP(cfg.RateLimitRPS, cfg.RateLimitBurst, 10_000, time.Hour)

	client := authclient.New(cfg.AuthBaseURL, cfg.AuthValidatePath, cfg.AuthTimeout)
	filter := gateway.NewFilter(client, zapLog, m)
	dispatcher, err := gateway.NewDispatcher(cfg.Routes, filter, zapLog)
	if err != nil {
		zapLog.Fatal("invalid routes", zap.Error(err))
	}

	router := server.NewEngine(server.EngineOptions{
		Logger:         zapLog,
		Metrics:        m,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})
	router.NoRoute(dispatcher.Handle)

	for _, r := range cfg.Routes {
		zapLog.Info("route", zap.String("prefix", r.Prefix), zap.String("upstream", r.Upstream), zap.Bool("auth", r.Auth))
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		limiter.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return server.RunHTTP(ctx, srv, "", "", zapLog)
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
		os.Exit(1)
	}
	zapLog.Info("shutdown complete")
}
