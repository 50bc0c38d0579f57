// Package health serves the gRPC health protocol, following the
// recognition engine breaker.
package health

import (
	"log/slog"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/hudreader/internal/resilience"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// Service is the name clients check for the frame pipeline. The empty
// name reports the process as a whole.
const Service = "hudreader.Pipeline"

// Server wraps the stock health server.
type Server struct {
	hs *grpchealth.Server
}

// New creates a health server reporting SERVING, and hooks b so the
// pipeline status follows the breaker.
func New(b *resilience.Breaker) *Server {
	s := &Server{hs: grpchealth.NewServer()}
	s.set(healthpb.HealthCheckResponse_SERVING)
	if b != nil {
		b.OnChange(s.onBreaker)
	}
	return s
}

func (s *Server) onBreaker(from, to resilience.State) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if to == resilience.Closed {
		st = healthpb.HealthCheckResponse_SERVING
	}
	slog.Info("pipeline health changed", "from", from, "to", to, "status", st)
	s.hs.SetServingStatus(Service, st)
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.hs.SetServingStatus("", st)
	s.hs.SetServingStatus(Service, st)
}

// MarkDown reports NOT_SERVING for everything, for when processing stopped.
func (s *Server) MarkDown() {
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
}

// Shutdown sets every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}

// Register attaches the health service to g.
func (s *Server) Register(g *grpc.Server) {
	healthpb.RegisterHealthServer(g, s.hs)
}

// NewGRPCServer creates a gRPC server with trace interceptors and the
// health service registered.
func NewGRPCServer(s *Server) *grpc.Server {
	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(trace.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(trace.StreamServerInterceptor()),
	)
	s.Register(g)
	return g
}
