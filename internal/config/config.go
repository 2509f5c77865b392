package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// Config holds the settings of the foreground monitor, the background
// executor and the arm/disarm tools.
type Config struct {
	// OwnerID identifies the device owner in triggers and tracking sessions.
	OwnerID string `yaml:"owner_id" validate:"required"`
	// StoreDir is the directory of the durable key-value store shared by both
	// execution contexts.
	StoreDir string `yaml:"store_dir" validate:"required"`
	// SinkPath is the SQLite database receiving location samples.
	SinkPath string `yaml:"sink_path" validate:"required"`
	// Detector holds the values written to the store by shake-arm.
	Detector domain.DetectorConfig `yaml:"detector"`
	// Motion configures the accelerometer.
	Motion MotionConfig `yaml:"motion"`
	// GPS configures the location receiver.
	GPS GPSConfig `yaml:"gps"`
	// Monitor configures the foreground monitor.
	Monitor MonitorConfig `yaml:"monitor"`
	// Tracking configures live location sessions.
	Tracking TrackingConfig `yaml:"tracking"`
	// Background configures the scheduled background executor.
	Background BackgroundConfig `yaml:"background"`
	// NotifyCommand overrides the local notification command, see notify.Command.
	NotifyCommand string `yaml:"notify_command,omitempty"`
}

// MotionConfig selects the accelerometer feed.
type MotionConfig struct {
	// Device is "stdin", "serial:<port>[@baud]" or a file path.
	Device string `yaml:"device" validate:"required"`
	// SnapshotInterval is the minimum spacing between persisted snapshots.
	SnapshotInterval time.Duration `yaml:"snapshot_interval" validate:"gt=0"`
}

// GPSConfig selects the NMEA receiver. An empty Device disables tracking fixes.
type GPSConfig struct {
	Device    string        `yaml:"device,omitempty"`
	BaudRate  int           `yaml:"baud_rate" validate:"gt=0"`
	MaxFixAge time.Duration `yaml:"max_fix_age" validate:"gt=0"`
}

// MonitorConfig configures the foreground process.
type MonitorConfig struct {
	// TriggerPollInterval is how often the trigger signal is polled.
	TriggerPollInterval time.Duration `yaml:"trigger_poll_interval" validate:"gt=0"`
	// StatusListenAddress exposes the gRPC health service when set.
	StatusListenAddress string `yaml:"status_listen_address,omitempty" validate:"omitempty,hostname_port"`
	// ProcessName is the executable name the background executor looks for to
	// detect a running monitor.
	ProcessName string `yaml:"process_name" validate:"required"`
}

// TrackingConfig configures live location sessions.
type TrackingConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=30s"`
	Duration     time.Duration `yaml:"duration" validate:"gt=0"`
}

// BackgroundConfig configures one background wake cycle.
type BackgroundConfig struct {
	// Budget is the hard time limit of a wake cycle.
	Budget time.Duration `yaml:"budget" validate:"gt=0"`
	// StaleAfter marks snapshots older than this as stationary.
	StaleAfter time.Duration `yaml:"stale_after" validate:"gt=0"`
	// PollInterval is how often the snapshot is re-read.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "shake-alarm-settings.yaml"

	// DefaultStoreDir is the default durable store directory.
	DefaultStoreDir = "shake-alarm-store"

	// DefaultSinkPath is the default location database.
	DefaultSinkPath = "shake-alarm-locations.db"

	// DefaultMonitorProcessName is the executable name of the foreground monitor.
	DefaultMonitorProcessName = "shake-monitor"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

// Defaults of the timing settings.
const (
	DefaultSnapshotInterval    = 200 * time.Millisecond
	DefaultMaxFixAge           = 10 * time.Second
	DefaultGPSBaudRate         = 9600
	DefaultTriggerPollInterval = 2 * time.Second
	DefaultTrackingPoll        = 30 * time.Second
	DefaultTrackingDuration    = 60 * time.Minute
	DefaultBackgroundBudget    = 25 * time.Second
	DefaultStaleAfter          = 3 * time.Second
	DefaultBackgroundPoll      = 250 * time.Millisecond
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")

	//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use.
	validate     *validator.Validate
	validateOnce sync.Once
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Detector: domain.DefaultDetectorConfig()}
	applyDefaults(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := &Config{Detector: domain.DefaultDetectorConfig()}
	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}

	return cfg, err
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills unset values with defaults and checks the result.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	if err := cfg.Detector.Validate(); err != nil {
		return fmt.Errorf("invalid detector settings: %w", err)
	}

	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	if err := validate.StructExcept(cfg, "Detector"); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if addr := cfg.Monitor.StatusListenAddress; addr != "" {
		if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
			return fmt.Errorf("invalid status listen address: %w", err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.OwnerID == "" {
		cfg.OwnerID = defaultOwnerID()
	}

	setDefault(&cfg.StoreDir, DefaultStoreDir)
	setDefault(&cfg.SinkPath, DefaultSinkPath)
	setDefault(&cfg.Motion.Device, "stdin")
	setDefault(&cfg.Motion.SnapshotInterval, DefaultSnapshotInterval)
	setDefault(&cfg.GPS.BaudRate, DefaultGPSBaudRate)
	setDefault(&cfg.GPS.MaxFixAge, DefaultMaxFixAge)
	setDefault(&cfg.Monitor.TriggerPollInterval, DefaultTriggerPollInterval)
	setDefault(&cfg.Monitor.ProcessName, DefaultMonitorProcessName)
	setDefault(&cfg.Tracking.PollInterval, DefaultTrackingPoll)
	setDefault(&cfg.Tracking.Duration, DefaultTrackingDuration)
	setDefault(&cfg.Background.Budget, DefaultBackgroundBudget)
	setDefault(&cfg.Background.StaleAfter, DefaultStaleAfter)
	setDefault(&cfg.Background.PollInterval, DefaultBackgroundPoll)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func defaultOwnerID() string {
	owner, err := DetectOwner()
	if err != nil {
		return "local"
	}

	return owner
}

// DetectOwner names the local account as "username@hostname".
func DetectOwner() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	return currentUser.Username + "@" + hostname, nil
}
