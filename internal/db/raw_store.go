package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/snaptrack/internal/track"
)

// SampleFilter narrows list queries. Zero values mean "no filter";
// Limit <= 0 falls back to a small default page.
type SampleFilter struct {
	DeviceID string
	TripID   string
	Start    *time.Time
	End      *time.Time
	Limit    int
	Offset   int
}

const defaultListLimit = 100

func (f SampleFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// whereClause renders the filter as SQL. Timestamps compare against
// the sample's measurement time, not its ingest time.
func (f SampleFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}

	if f.DeviceID != "" {
		conds = append(conds, "device_id = ?")
		args = append(args, f.DeviceID)
	}
	if f.TripID != "" {
		conds = append(conds, "trip_id = ?")
		args = append(args, f.TripID)
	}
	if f.Start != nil {
		conds = append(conds, "timestamp_ms >= ?")
		args = append(args, f.Start.UnixMilli())
	}
	if f.End != nil {
		conds = append(conds, "timestamp_ms <= ?")
		args = append(args, f.End.UnixMilli())
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// InsertRawSample persists a raw sample exactly as received, assigning
// an id and ingest time if the caller left them unset.
func (db *DB) InsertRawSample(ctx context.Context, s *track.Sample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	var metadata interface{}
	if len(s.Metadata) > 0 {
		metadata = string(s.Metadata)
	}

	query := `
		INSERT INTO raw_samples (
			id, device_id, trip_id, timestamp_ms, lat, lon,
			accuracy, speed, heading, metadata, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		s.ID,
		s.DeviceID,
		s.TripID,
		s.Timestamp.UnixMilli(),
		s.Lat,
		s.Lon,
		s.Accuracy,
		s.Speed,
		s.Heading,
		metadata,
		s.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert raw sample: %w", err)
	}
	return nil
}

// GetRawSample loads one raw sample by id.
func (db *DB) GetRawSample(ctx context.Context, id string) (*track.Sample, error) {
	query := `
		SELECT id, device_id, trip_id, timestamp_ms, lat, lon,
		       accuracy, speed, heading, metadata, created_at_ms
		FROM raw_samples
		WHERE id = ?
	`
	s, err := scanRawSample(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, track.ErrRawSampleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw sample: %w", err)
	}
	return s, nil
}

// ListRawSamples returns raw samples matching the filter, ordered by
// (timestamp, id) ascending.
func (db *DB) ListRawSamples(ctx context.Context, f SampleFilter) ([]*track.Sample, error) {
	where, args := f.whereClause()
	query := fmt.Sprintf(`
		SELECT id, device_id, trip_id, timestamp_ms, lat, lon,
		       accuracy, speed, heading, metadata, created_at_ms
		FROM raw_samples
		%s
		ORDER BY timestamp_ms ASC, id ASC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, f.limit(), f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw samples: %w", err)
	}
	defer rows.Close()

	var samples []*track.Sample
	for rows.Next() {
		s, err := scanRawSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRawSample(row rowScanner) (*track.Sample, error) {
	var s track.Sample
	var timestampMs, createdAtMs int64
	var metadata sql.NullString

	err := row.Scan(
		&s.ID,
		&s.DeviceID,
		&s.TripID,
		&timestampMs,
		&s.Lat,
		&s.Lon,
		&s.Accuracy,
		&s.Speed,
		&s.Heading,
		&metadata,
		&createdAtMs,
	)
	if err != nil {
		return nil, err
	}

	s.Timestamp = time.UnixMilli(timestampMs).UTC()
	s.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	if metadata.Valid {
		s.Metadata = json.RawMessage(metadata.String)
	}
	return &s, nil
}
