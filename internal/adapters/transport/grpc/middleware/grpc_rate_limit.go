package middleware

import (
	"context"
	"net"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

func peerIP(ctx context.Context) (string, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", false
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String(), true
	}
	return host, true
}

func NewRateLimitPerIP(limiter *ratelimit.PerIP) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ip, ok := peerIP(ctx)
		if !ok || !limiter.Allow(ip) {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}

func NewStreamRateLimitPerIP(limiter *ratelimit.PerIP) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ip, ok := peerIP(ss.Context())
		if !ok || !limiter.Allow(ip) {
			return errRateLimited
		}
		return handler(srv, ss)
	}
}
