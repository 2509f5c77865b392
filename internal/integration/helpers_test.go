package integration

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/shake-alarm/internal/config"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}

// writeSettings stores a fast-polling configuration in a temp dir.
func writeSettings(t *testing.T, mutate func(*config.Config)) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := config.Default()
	settings.OwnerID = "integration"
	settings.StoreDir = filepath.Join(dir, "store")
	settings.SinkPath = filepath.Join(dir, "locations.db")
	settings.Monitor.TriggerPollInterval = 50 * time.Millisecond
	settings.Background.PollInterval = 20 * time.Millisecond
	settings.Background.Budget = 5 * time.Second
	settings.NotifyCommand = "true"

	if mutate != nil {
		mutate(settings)
	}

	require.NoError(t, config.Save(path, settings))

	return path, settings
}

// fixedProvider always reports the same position.
type fixedProvider struct{}

func (fixedProvider) CurrentFix(context.Context) (domain.LocationSample, error) {
	return domain.LocationSample{Lat: 55.7558, Lng: 37.6173, Accuracy: 8, CapturedAt: time.Now()}, nil
}

func (fixedProvider) Watch(ctx context.Context, _ func(domain.LocationSample)) error {
	<-ctx.Done()

	return nil
}

// idleSource never produces motion.
type idleSource struct{}

func (idleSource) Run(ctx context.Context, _ func(domain.MotionSample)) error {
	<-ctx.Done()

	return nil
}

type recordingConsumer struct {
	mu       sync.Mutex
	triggers []domain.Trigger
}

func (c *recordingConsumer) Consume(_ context.Context, trigger domain.Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.triggers = append(c.triggers, trigger)

	return nil
}

func (c *recordingConsumer) all() []domain.Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]domain.Trigger(nil), c.triggers...)
}
