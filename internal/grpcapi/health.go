// Package grpcapi exposes the standard grpc.health.v1 service so station
// supervisors can tell whether the check-in desk can reach its database.
package grpcapi

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "gymgate.checkin"

const defaultProbeInterval = 10 * time.Second

type Dependencies struct {
	Logger *zap.Logger
	Addr   string
	// Ping decides SERVING vs NOT_SERVING.  Nil always serves.
	Ping          func(ctx context.Context) error
	ProbeInterval time.Duration
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
	addr       string
	ping       func(ctx context.Context) error
	interval   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := d.ProbeInterval
	if interval <= 0 {
		interval = defaultProbeInterval
	}

	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// Not serving until the first probe says otherwise.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpcServer: gs,
		health:     hs,
		logger:     logger,
		addr:       d.Addr,
		ping:       d.Ping,
		interval:   interval,
		stop:       make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve probes once, starts the probe loop and serves on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.loop()
	return s.grpcServer.Serve(lis)
}

// Probe runs one ping and publishes the resulting status.
func (s *Server) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.ping(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// Shutdown marks every service NOT_SERVING, stops the probe loop and drains
// in-flight RPCs until ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}
