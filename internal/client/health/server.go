// Package health exposes the standard gRPC health service. The overall
// status is SERVING while the process runs; BackendService follows the
// shared online flag.
package health

import (
	"context"
	"net"

	"github.com/dmitrijs2005/logsync/internal/client/syncctx"
	"github.com/dmitrijs2005/logsync/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// BackendService is the service name whose status tracks backend
// reachability.
const BackendService = "logsync.backend"

type Server struct {
	address string
	state   *syncctx.Context
	health  *health.Server
	logger  logging.Logger
}

func NewServer(addr string, state *syncctx.Context, l logging.Logger) *Server {
	return &Server{
		address: addr,
		state:   state,
		health:  health.NewServer(),
		logger:  l.With("module", "health"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	followCtx, stop := context.WithCancel(ctx)
	defer stop()
	go s.follow(followCtx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	return srv.Serve(lis)
}

// follow mirrors the online flag into the backend service status.
func (s *Server) follow(ctx context.Context) {
	updates, cancel := s.state.Subscribe()
	defer cancel()

	s.set(s.state.IsOnline())
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			s.set(st.IsOnline)
		}
	}
}

func (s *Server) set(online bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if online {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(BackendService, st)
}

func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "grpc call", "method", info.FullMethod, "code", status.Code(err).String())
	return resp, err
}
