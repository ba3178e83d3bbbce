package server

import (
	"context"
	"net"
	"time"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/grpc/middleware"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service name.
const ServiceName = "auth.v1.AuthService"

type GRPCOptions struct {
	Address  string
	CertFile string
	KeyFile  string
	Limiter  *ratelimit.PerIP
	// Ready reports whether dependencies are reachable; polled every
	// ProbeInterval.
	Ready         func(context.Context) error
	ProbeInterval time.Duration
}

// NewGRPCServer builds the health server with the interceptor chain.
func NewGRPCServer(opts GRPCOptions, logger *zap.Logger) (*grpc.Server, *health.Server, error) {
	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryServer(logger, opts.Limiter)),
		grpc.StreamInterceptor(middleware.ChainStreamServer(logger, opts.Limiter)),
	}
	if opts.CertFile != "" && opts.KeyFile != "" {
		creds, err := credentials.NewServerTLSFromFile(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load TLS credentials")
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}

	grpcServer := grpc.NewServer(serverOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpc_prometheus.Register(grpcServer)
	grpc_prometheus.EnableHandlingTimeHistogram()
	reflection.Register(grpcServer)

	return grpcServer, healthServer, nil
}

// StartGRPCServer serves health checks until ctx is cancelled.
func StartGRPCServer(ctx context.Context, opts GRPCOptions, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", opts.Address)
	if err != nil {
		return errors.Wrap(err, "listen grpc")
	}

	grpcServer, healthServer, err := NewGRPCServer(opts, logger)
	if err != nil {
		return err
	}

	go probe(ctx, healthServer, opts, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", opts.Address))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- errors.Wrap(err, "serve grpc")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("ctx cancelled, stopping gRPC server")
	healthServer.Shutdown()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-stopCtx.Done():
		grpcServer.Stop()
	case <-done:
	}
	logger.Info("gRPC server stopped")
	return nil
}

func probe(ctx context.Context, hs *health.Server, opts GRPCOptions, logger *zap.Logger) {
	set := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if opts.Ready != nil {
			if err := opts.Ready(ctx); err != nil {
				logger.Warn("readiness probe failed", zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(ServiceName, status)
	}

	set()
	if opts.ProbeInterval <= 0 {
		return
	}

	ticker := time.NewTicker(opts.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			set()
		}
	}
}
