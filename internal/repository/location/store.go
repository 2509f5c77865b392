package location

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	// Register the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	domain "github.com/oshokin/shake-alarm/internal/domain/alarm"
)

// ErrUnknownReference is returned when a tracking reference was never issued.
var ErrUnknownReference = errors.New("unknown tracking reference")

// referenceNamespace scopes the UUIDv5 tracking references to this project.
//
//nolint:gochecknoglobals // Derived constant.
var referenceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/oshokin/shake-alarm/tracking"))

// Store appends and reads location samples.
type Store struct {
	db *sql.DB
	// now stamps recorded_at; replaced in tests.
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open location database: %w", err)
	}

	if err = migrateUp(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records one sample for alertID. Re-recording the same capture time
// is a no-op.
func (s *Store) Append(ctx context.Context, alertID string, sample domain.LocationSample) error {
	const query = `
		INSERT OR IGNORE INTO location_samples
			(alert_id, captured_at_ns, lat, lng, accuracy, speed, heading, altitude, recorded_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		alertID,
		sample.CapturedAt.UnixNano(),
		sample.Lat,
		sample.Lng,
		sample.Accuracy,
		sample.Speed,
		sample.Heading,
		sample.Altitude,
		s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: append location sample: %w", domain.ErrTransientIO, err)
	}

	return nil
}

// Samples returns the samples of alertID ordered by capture time.
func (s *Store) Samples(ctx context.Context, alertID string) ([]domain.LocationSample, error) {
	const query = `
		SELECT captured_at_ns, lat, lng, accuracy, speed, heading, altitude
		FROM location_samples
		WHERE alert_id = ?
		ORDER BY captured_at_ns`

	rows, err := s.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("query location samples: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var samples []domain.LocationSample

	for rows.Next() {
		var (
			capturedAt int64
			sample     domain.LocationSample
		)

		err = rows.Scan(
			&capturedAt,
			&sample.Lat,
			&sample.Lng,
			&sample.Accuracy,
			&sample.Speed,
			&sample.Heading,
			&sample.Altitude,
		)
		if err != nil {
			return nil, fmt.Errorf("scan location sample: %w", err)
		}

		sample.CapturedAt = time.Unix(0, capturedAt)
		samples = append(samples, sample)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location samples: %w", err)
	}

	return samples, nil
}

// TrackingReference returns the opaque reference for alertID and registers
// it so ResolveReference can map it back. The reference is deterministic.
func (s *Store) TrackingReference(ctx context.Context, alertID string) (string, error) {
	reference := uuid.NewSHA1(referenceNamespace, []byte(alertID)).String()

	const query = `INSERT OR IGNORE INTO tracking_references (reference, alert_id) VALUES (?, ?)`

	if _, err := s.db.ExecContext(ctx, query, reference, alertID); err != nil {
		return "", fmt.Errorf("%w: register tracking reference: %w", domain.ErrTransientIO, err)
	}

	return reference, nil
}

// ResolveReference maps a reference issued by TrackingReference to its alert.
func (s *Store) ResolveReference(ctx context.Context, reference string) (string, error) {
	var alertID string

	err := s.db.QueryRowContext(ctx,
		`SELECT alert_id FROM tracking_references WHERE reference = ?`, reference,
	).Scan(&alertID)

	switch {
	case err == nil:
		return alertID, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrUnknownReference
	default:
		return "", fmt.Errorf("resolve tracking reference: %w", err)
	}
}
