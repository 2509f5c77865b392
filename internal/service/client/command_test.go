package client

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/shake-alarm/internal/api/grpc/status"
	"github.com/oshokin/shake-alarm/internal/bridge"
	"github.com/oshokin/shake-alarm/internal/config"
	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
	"github.com/oshokin/shake-alarm/internal/logger"
	"github.com/oshokin/shake-alarm/internal/repository/kv"
)

// flakyStore fails the first failPuts writes.
type flakyStore struct {
	*kv.MemoryStore

	mu       sync.Mutex
	failPuts int
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore) Put(ctx context.Context, key string, value *structpb.Value) error {
	s.mu.Lock()
	fail := s.failPuts > 0
	if fail {
		s.failPuts--
	}
	s.mu.Unlock()

	if fail {
		return errDiskFull
	}

	return s.MemoryStore.Put(ctx, key, value)
}

// TestRun_ArmAndDisarm writes through the file store named in the settings.
func TestRun_ArmAndDisarm(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "settings.yaml")

	settings := config.Default()
	settings.StoreDir = filepath.Join(dir, "store")
	require.NoError(t, config.Save(configPath, settings))

	ctx := context.Background()
	required := uint32(5)

	require.NoError(t, Run(ctx, &Options{
		ConfigPath:   configPath,
		DesiredState: true,
		Overrides:    Overrides{RequiredCount: &required},
		MuteFor:      10 * time.Minute,
	}))

	store, err := kv.NewFileStore(settings.StoreDir)
	require.NoError(t, err)

	b := bridge.New(store)

	armed, err := b.Armed(ctx)
	require.NoError(t, err)
	require.True(t, armed)

	cfg, ok, err := b.DetectorConfig(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 5, cfg.RequiredCount)
	require.InDelta(t, settings.Detector.ThresholdDelta, cfg.ThresholdDelta, 1e-9)

	muted, err := b.VoiceCooldown(ctx)
	require.NoError(t, err)
	require.True(t, muted.After(time.Now()))

	require.NoError(t, Run(ctx, &Options{ConfigPath: configPath}))

	armed, err = b.Armed(ctx)
	require.NoError(t, err)
	require.False(t, armed)
}

// TestPush_RejectsInvalidConfig never writes a rejected config.
func TestPush_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	store := kv.NewMemoryStore()
	cfg := domain.DefaultDetectorConfig()
	cfg.ThresholdDelta = -1

	err := push(context.Background(), bridge.New(store), &Options{DesiredState: true}, cfg)

	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, "ThresholdDelta", cfgErr.Field)
	require.Empty(t, store.Keys())
}

// TestPush_RetriesTransientFailures keeps trying once per interval.
func TestPush_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		store := &flakyStore{MemoryStore: kv.NewMemoryStore(), failPuts: 2}
		b := bridge.New(store)
		start := time.Now()

		require.NoError(t, push(t.Context(), b, &Options{DesiredState: true}, domain.DefaultDetectorConfig()))
		require.Equal(t, 2*defaultPushInterval, time.Since(start))

		armed, err := b.Armed(t.Context())
		require.NoError(t, err)
		require.True(t, armed)
	})
}

// TestPush_GivesUp stops after the attempt budget.
func TestPush_GivesUp(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		store := &flakyStore{MemoryStore: kv.NewMemoryStore(), failPuts: 1000}

		err := push(t.Context(), bridge.New(store), &Options{}, domain.DetectorConfig{})
		require.ErrorIs(t, err, errTooManyAttempts)
	})
}

// TestConfirm logs once the monitor reports the requested state.
func TestConfirm(t *testing.T) {
	t.Parallel()

	lc := net.ListenConfig{}
	lis, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := status.NewServer()
	srv.SetArmed(true)

	serveCtx, stop := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() { served <- srv.Serve(serveCtx, lis) }()

	t.Cleanup(func() {
		stop()
		require.NoError(t, <-served)
	})

	core, logs := observer.New(zapcore.InfoLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	confirm(ctx, lis.Addr().String(), &Options{DesiredState: true})

	require.Equal(t, 1, logs.FilterMessage("Monitor confirmed the new state").Len())
}
