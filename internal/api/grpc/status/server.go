package status

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/shake-alarm/internal/logger"
)

const (
	// DetectorService reports SERVING while the detector is armed.
	DetectorService = "shake_alarm.v1.Detector"
	// TrackingService reports SERVING while a tracking session is active.
	TrackingService = "shake_alarm.v1.Tracking"
)

// Server publishes monitor state through the health protocol.
type Server struct {
	health *health.Server
}

// NewServer creates a server with every component reported as not serving.
// The overall ("") status is SERVING while the process runs.
func NewServer() *Server {
	s := &Server{health: health.NewServer()}
	s.SetArmed(false)
	s.SetTracking(false)

	return s
}

// SetArmed updates the detector status.
func (s *Server) SetArmed(armed bool) {
	s.health.SetServingStatus(DetectorService, servingStatus(armed))
}

// SetTracking updates the tracking status.
func (s *Server) SetTracking(active bool) {
	s.health.SetServingStatus(TrackingService, servingStatus(active))
}

// Register attaches the health service to registrar.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Serve runs a gRPC server on lis until ctx is canceled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer()
	s.Register(grpcServer)

	logger.InfoKV(ctx, "Status server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		// Flip everything to NOT_SERVING so watchers see the shutdown.
		s.health.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Status server stopped")

	return nil
}

// ListenAndServe listens on address and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.Serve(ctx, lis)
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}
