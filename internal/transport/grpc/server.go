package grpcx

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported by the health service alongside the overall "" status.
const ServiceName = "comms.v1.Comms"

// Probe reports whether a backing dependency is reachable.
type Probe func(ctx context.Context) error

type Server struct {
	*grpc.Server
	health *health.Server
	probes map[string]Probe
	logger *slog.Logger
}

func NewServer(logger *slog.Logger, probes map[string]Probe) *Server {
	logger = logger.With("component", "grpc")
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(logger)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{Server: gs, health: hs, probes: probes, logger: logger}
}

// WatchDependencies runs probes every interval and flips ServiceName to
// NOT_SERVING while any of them fails. Returns when ctx is done.
func (s *Server) WatchDependencies(ctx context.Context, every time.Duration) {
	if len(s.probes) == 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		s.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) check(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	for name, probe := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := probe(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("dependency unhealthy", "dependency", name, "err", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(ServiceName, st)
}

// Shutdown marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.GracefulStop()
}
