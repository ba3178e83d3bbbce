package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	myPostgresRepo "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/db/redis"
	authhttp "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/password"
	appsvc "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/metrics"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/server"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.LoadAuth()
	if err != nil {
		lg.Must("auth", "error").Fatal("failed to load config", zap.Error(err))
	}

	zapLog := lg.Must("auth", cfg.LogLevel)
	defer zapLog.Sync()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		zapLog.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		zapLog.Fatal("db handle", zap.Error(err))
	}
	defer sqlDB.Close()
	if err := migrate.Up(sqlDB, zapLog); err != nil {
		zapLog.Fatal("run migrations", zap.Error(err))
	}

	var attempts repo.AttemptRepo
	if cfg.RedisAddress != "" {
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisCli.Close()
		attempts = myRedisRepo.NewRedisAttemptRepo(redisCli)
	} else {
		zapLog.Warn("REDIS_ADDRESS is not set, login throttling disabled")
	}

	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		zapLog.Fatal("failed to init JWT util", zap.Error(err))
	}
	hasher, err := password.NewCredentialVerifier(cfg)
	if err != nil {
		zapLog.Fatal("failed to init password hasher", zap.Error(err))
	}
	svc := appsvc.New(myPostgresRepo.NewPostgresUserRepo(db), attempts, jwtUtil, hasher, cfg, dto.NewValidator())

	m := metrics.New("auth")
	limiter := ratelimit.NewPerIP(cfg.RateLimitRPS, cfg.RateLimitBurst, 10_000, time.Hour)

	router := server.NewEngine(server.EngineOptions{
		Logger:         zapLog,
		Metrics:        m,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
	})
	authhttp.NewHandler(svc, zapLog, m).Register(router)

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
		return server.RunHTTP(ctx, srv, cfg.TLSCertFile, cfg.TLSKeyFile, zapLog)
	})
	if cfg.GRPCAddress != "" {
		g.Go(func() error {
			return server.StartGRPCServer(ctx, server.GRPCOptions{
				Address:       cfg.GRPCAddress,
				CertFile:      cfg.TLSCertFile,
				KeyFile:       cfg.TLSKeyFile,
				Limiter:       limiter,
				Ready:         sqlDB.PingContext,
				ProbeInterval: 10 * time.Second,
			}, zapLog)
		})
	}

	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
		os.Exit(1)
	}
	zapLog.Info("shutdown complete")
}
