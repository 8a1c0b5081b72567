package monitor

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer exposes the standard gRPC health service. Each gateway is a
// service named after the gateway; "" reports SERVING only while every known
// gateway is healthy.
type HealthServer struct {
	srv *health.Server
	log zerolog.Logger

	mu       sync.Mutex
	statuses map[string]bool
}

// NewHealthServer creates a health server with the overall service SERVING.
func NewHealthServer(logger zerolog.Logger) *HealthServer {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{
		srv:      srv,
		log:      logger.With().Str("component", "grpc_health").Logger(),
		statuses: make(map[string]bool),
	}
}

// SetGatewayHealth updates one gateway service and recomputes the overall status.
func (h *HealthServer) SetGatewayHealth(gatewayName string, healthy bool) {
	h.mu.Lock()
	h.statuses[gatewayName] = healthy
	overall := true
	for _, ok := range h.statuses {
		overall = overall && ok
	}
	h.mu.Unlock()

	h.srv.SetServingStatus(gatewayName, servingStatus(healthy))
	h.srv.SetServingStatus("", servingStatus(overall))
}

// Status reports the serving status of a service as a gRPC client would see it.
func (h *HealthServer) Status(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve listens on addr until ctx is cancelled.
func (h *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h.srv)

	go func() {
		<-ctx.Done()
		h.srv.Shutdown()
		gs.GracefulStop()
	}()

	h.log.Info().Str("addr", addr).Msg("grpc health server listening")
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func servingStatus(healthy bool) healthpb.HealthCheckResponse_ServingStatus {
	if healthy {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
