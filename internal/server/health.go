package server

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	repo "github.com/joseph-ayodele/committee-extract/internal/repository"
)

// HealthServer is the daemon's gRPC surface: the standard health service, driven by
// periodic record store pings, plus reflection for grpcurl.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	store  repo.RecordStore
	logger *slog.Logger
}

func NewHealthServer(store repo.RecordStore, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{grpc: gs, health: hs, store: store, logger: logger}
}

// Serve blocks serving on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.Info("grpc.listening", "addr", lis.Addr().String())
	return h.grpc.Serve(lis)
}

// Monitor pings the store every interval and flips the overall status until ctx is done.
func (h *HealthServer) Monitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		h.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Check pings the store once and updates the serving status.
func (h *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := repo.HealthCheck(ctx, h.store, 2*time.Second, h.logger); err != nil {
		h.logger.Warn("health.db_unavailable", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", status)
	return status
}

// Stop marks the service as not serving and drains in-flight RPCs.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
