package api

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/subhajitdharMS/ErrorDecodeAI/internal/config"
)

// apiKeyMetadata is the gRPC metadata key carrying the shared secret.
const apiKeyMetadata = "x-api-key"

// Server wraps the gRPC server implementation and lifecycle helpers.
type Server struct {
	cfg        config.ServerConfig
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
}

// NewServer constructs a gRPC server bound to cfg.GRPCAddress. keyFn returns
// the API key of the current configuration snapshot.
func NewServer(cfg config.ServerConfig, service NotifierServer, keyFn func() string, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
	}
	srv := newGRPCServer(cfg, service, keyFn, opts...)
	srv.listener = lis
	return srv, nil
}

func newGRPCServer(cfg config.ServerConfig, service NotifierServer, keyFn func() string, opts ...grpc.ServerOption) *Server {
	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpc_prometheus.UnaryServerInterceptor,
			authUnaryInterceptor(keyFn),
			rateLimitUnaryInterceptor(NewLimiter(cfg.RateLimit, cfg.RateBurst)),
		),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	RegisterNotifierServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthSrv.SetServingStatus(NotifierServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	reflection.Register(grpcServer)

	return &Server{cfg: cfg, grpcServer: grpcServer, health: healthSrv}
}

// authUnaryInterceptor guards the Notifier service. Health and reflection stay open.
func authUnaryInterceptor(keyFn func() string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+NotifierServiceName+"/") {
			return handler(ctx, req)
		}
		var got string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(apiKeyMetadata); len(vals) > 0 {
				got = vals[0]
			}
		}
		if !validKey(keyFn(), got) {
			return nil, status.Error(codes.Unauthenticated, "Invalid API key")
		}
		return handler(ctx, req)
	}
}

func rateLimitUnaryInterceptor(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if limiter != nil && info.FullMethod == NotifyFullMethod && !limiter.Allow() {
			return nil, status.Error(codes.ResourceExhausted, "Too many requests")
		}
		return handler(ctx, req)
	}
}

// WithAPIKey attaches key to outgoing calls made with ctx.
func WithAPIKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, apiKeyMetadata, key)
}

// Start serves incoming gRPC requests until Stop/Shutdown is invoked.
func (s *Server) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Serve runs the server on an externally supplied listener.
func (s *Server) Serve(lis net.Listener) error {
	s.listener = lis
	return s.grpcServer.Serve(lis)
}

// Shutdown marks the server not serving, drains, and falls back to Stop after ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address (useful for tests).
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
