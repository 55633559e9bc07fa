package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/snaptrack/internal/track"
)

const processedColumns = `id, device_id, trip_id, timestamp_ms, lat, lon, accuracy,
	distance_m, time_diff_s, speed_mps, processing_method, matching_confidence,
	raw_sample_id, processed_at_ms, last_seen_ms, stop_count`

// InsertProcessed persists a processed sample, assigning its id. The
// UNIQUE constraint on raw_sample_id makes redelivered jobs a no-op:
// inserted=false, nil error.
func (db *DB) InsertProcessed(ctx context.Context, s *track.ProcessedSample) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	var lastSeenMs interface{}
	if s.LastSeen != nil {
		lastSeenMs = s.LastSeen.UnixMilli()
	}

	query := `
		INSERT INTO processed_samples (
			id, device_id, trip_id, timestamp_ms, lat, lon, accuracy,
			distance_m, time_diff_s, speed_mps, processing_method,
			matching_confidence, raw_sample_id, processed_at_ms,
			last_seen_ms, stop_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(raw_sample_id) DO NOTHING
	`
	result, err := db.ExecContext(ctx, query,
		s.ID,
		s.DeviceID,
		s.TripID,
		s.Timestamp.UnixMilli(),
		s.Lat,
		s.Lon,
		s.Accuracy,
		s.Distance,
		s.TimeDiffSeconds,
		s.Speed,
		string(s.Method),
		s.MatchingConfidence,
		s.RawSampleID,
		s.ProcessedAt.UnixMilli(),
		lastSeenMs,
		s.StopCount,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert processed sample: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected == 1, nil
}

// FindLatestProcessed returns the stream head for a device: the
// processed sample with the greatest (timestamp, id).
func (db *DB) FindLatestProcessed(ctx context.Context, deviceID string) (*track.ProcessedSample, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM processed_samples
		WHERE device_id = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT 1
	`, processedColumns)

	s, err := scanProcessedSample(db.QueryRowContext(ctx, query, deviceID))
	if err == sql.ErrNoRows {
		return nil, track.ErrNoProcessedSample
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest processed sample: %w", err)
	}
	return s, nil
}

// FindRecentProcessed returns up to n processed samples for a device,
// newest first.
func (db *DB) FindRecentProcessed(ctx context.Context, deviceID string, n int) ([]*track.ProcessedSample, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM processed_samples
		WHERE device_id = ?
		ORDER BY timestamp_ms DESC, id DESC
		LIMIT ?
	`, processedColumns)

	rows, err := db.QueryContext(ctx, query, deviceID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent processed samples: %w", err)
	}
	defer rows.Close()

	return collectProcessedSamples(rows)
}

// UpdateProcessedMetadata records a stop-coalesced successor on an
// existing emission: sets last_seen and bumps the stop counter. This
// is the only write ever applied to a processed row after insert.
func (db *DB) UpdateProcessedMetadata(ctx context.Context, id string, lastSeen time.Time, stopCountInc int) error {
	result, err := db.ExecContext(ctx,
		`UPDATE processed_samples SET last_seen_ms = ?, stop_count = stop_count + ? WHERE id = ?`,
		lastSeen.UnixMilli(), stopCountInc, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update processed metadata: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("processed sample %s not found", id)
	}
	return nil
}

// ListProcessedSamples returns processed samples matching the filter,
// ordered by (timestamp, id) ascending.
func (db *DB) ListProcessedSamples(ctx context.Context, f SampleFilter) ([]*track.ProcessedSample, error) {
	where, args := f.whereClause()
	query := fmt.Sprintf(`
		SELECT %s
		FROM processed_samples
		%s
		ORDER BY timestamp_ms ASC, id ASC
		LIMIT ? OFFSET ?
	`, processedColumns, where)
	args = append(args, f.limit(), f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed samples: %w", err)
	}
	defer rows.Close()

	return collectProcessedSamples(rows)
}

// DeviceSpeeds returns every derived speed for a device in a time
// range, plus the summed distance, for the stats endpoint. Speeds come
// back in stream order.
func (db *DB) DeviceSpeeds(ctx context.Context, deviceID string, start, end *time.Time) ([]float64, float64, error) {
	conds := "device_id = ?"
	args := []interface{}{deviceID}
	if start != nil {
		conds += " AND timestamp_ms >= ?"
		args = append(args, start.UnixMilli())
	}
	if end != nil {
		conds += " AND timestamp_ms <= ?"
		args = append(args, end.UnixMilli())
	}

	query := fmt.Sprintf(`
		SELECT speed_mps, distance_m
		FROM processed_samples
		WHERE %s
		ORDER BY timestamp_ms ASC, id ASC
	`, conds)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query device speeds: %w", err)
	}
	defer rows.Close()

	var speeds []float64
	var totalDistance float64
	for rows.Next() {
		var speed, distance float64
		if err := rows.Scan(&speed, &distance); err != nil {
			return nil, 0, fmt.Errorf("failed to scan device speeds: %w", err)
		}
		speeds = append(speeds, speed)
		totalDistance += distance
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return speeds, totalDistance, nil
}

// MethodCounts returns how many processed samples each pipeline method
// produced for a device in a time range. Used by the monitor charts.
func (db *DB) MethodCounts(ctx context.Context, deviceID string, start, end *time.Time) (map[string]int, error) {
	conds := "device_id = ?"
	args := []interface{}{deviceID}
	if start != nil {
		conds += " AND timestamp_ms >= ?"
		args = append(args, start.UnixMilli())
	}
	if end != nil {
		conds += " AND timestamp_ms <= ?"
		args = append(args, end.UnixMilli())
	}

	query := fmt.Sprintf(`
		SELECT processing_method, COUNT(*)
		FROM processed_samples
		WHERE %s
		GROUP BY processing_method
	`, conds)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query method counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("failed to scan method counts: %w", err)
		}
		counts[method] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func collectProcessedSamples(rows *sql.Rows) ([]*track.ProcessedSample, error) {
	var samples []*track.ProcessedSample
	for rows.Next() {
		s, err := scanProcessedSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processed sample: %w", err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

func scanProcessedSample(row rowScanner) (*track.ProcessedSample, error) {
	var s track.ProcessedSample
	var timestampMs, processedAtMs int64
	var lastSeenMs sql.NullInt64
	var method string

	err := row.Scan(
		&s.ID,
		&s.DeviceID,
		&s.TripID,
		&timestampMs,
		&s.Lat,
		&s.Lon,
		&s.Accuracy,
		&s.Distance,
		&s.TimeDiffSeconds,
		&s.Speed,
		&method,
		&s.MatchingConfidence,
		&s.RawSampleID,
		&processedAtMs,
		&lastSeenMs,
		&s.StopCount,
	)
	if err != nil {
		return nil, err
	}

	s.Timestamp = time.UnixMilli(timestampMs).UTC()
	s.ProcessedAt = time.UnixMilli(processedAtMs).UTC()
	s.Method = track.Method(method)
	if lastSeenMs.Valid {
		seen := time.UnixMilli(lastSeenMs.Int64).UTC()
		s.LastSeen = &seen
	}
	return &s, nil
}
