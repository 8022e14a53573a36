// Package grpc serves the gRPC health protocol for orchestrators and load
// balancers. Serving status follows the store's reachability.
package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"equipshare-backend/internal/api/grpc/interceptor"
	"equipshare-backend/internal/logger"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "equipshare.v1.Lifecycle"

// Checker reports whether the backing store is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

type HealthMonitor struct {
	server   *health.Server
	checker  Checker
	interval time.Duration
}

func NewHealthMonitor(checker Checker, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HealthMonitor{server: health.NewServer(), checker: checker, interval: interval}
}

// Check probes the store once and publishes the result.
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if m.checker != nil {
		pingCtx, cancel := context.WithTimeout(ctx, m.interval)
		err := m.checker.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Health check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	m.server.SetServingStatus("", st)
	m.server.SetServingStatus(ServiceName, st)
	return st
}

// Run re-checks on every interval until ctx is done, then reports
// NOT_SERVING for good.
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *HealthMonitor) Server() healthpb.HealthServer {
	return m.server
}

// NewServer builds the gRPC server carrying health and reflection.
func NewServer(auth *interceptor.AuthInterceptor, monitor *HealthMonitor) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(auth.Unary()),
		grpc.StreamInterceptor(auth.Stream()),
	)
	healthpb.RegisterHealthServer(s, monitor.server)

	// Register reflection service for grpcurl
	reflection.Register(s)
	return s
}
