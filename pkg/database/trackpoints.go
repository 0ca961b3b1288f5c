package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"race-photo-map/pkg/track"
)

// =====================
// Track point storage
// =====================

// insertBatchSize keeps multi-row VALUES statements under every engine's
// placeholder limit (SQLite caps at 32766 host parameters).
const insertBatchSize = 500

// InsertTrackPoints stores a parsed track in chunks.  Duplicate fixes are
// dropped silently through ON CONFLICT so re-importing the same GPX file is
// idempotent.  PostgreSQL switches to COPY for large tracks because COPY
// beats even multi-row INSERT by an order of magnitude there.
func (db *Database) InsertTrackPoints(ctx context.Context, race string, points []TrackPointRecord) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}
	if len(points) == 0 {
		return nil
	}

	if db.Driver == "pgx" && len(points) > insertBatchSize {
		return db.insertTrackPointsPostgreSQLCopy(ctx, race, points)
	}

	for i := 0; i < len(points); {
		end := i + insertBatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := db.insertTrackPointChunk(ctx, race, points[i:end]); err != nil {
			return err
		}
		i = end
	}
	return nil
}

func (db *Database) insertTrackPointChunk(ctx context.Context, race string, chunk []TrackPointRecord) error {
	var sb strings.Builder
	ph := newPlaceholderGenerator(db.Driver)
	args := make([]any, 0, len(chunk)*8)

	switch db.Driver {
	case "pgx":
		// BIGSERIAL fills id, so we only ship the payload columns.
		sb.WriteString("INSERT INTO track_points (race,time,lat,lon,distance,elevation,heart_rate) VALUES ")
		for j, p := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			writeValueTuple(&sb, ph, 7)
			args = append(args,
				race, p.TimeUTCMs, p.Lat, p.Lon, p.DistanceM,
				nullableFloat64(p.ElevationValid, p.Elevation),
				nullableInt(p.HeartRateValid, p.HeartRate),
			)
		}
		sb.WriteString(" ON CONFLICT ON CONSTRAINT track_points_unique DO NOTHING")

	case "duckdb":
		sb.WriteString("INSERT INTO track_points (race,time,lat,lon,distance,elevation,heart_rate) VALUES ")
		for j, p := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			writeValueTuple(&sb, ph, 7)
			args = append(args,
				race, p.TimeUTCMs, p.Lat, p.Lon, p.DistanceM,
				nullableFloat64(p.ElevationValid, p.Elevation),
				nullableInt(p.HeartRateValid, p.HeartRate),
			)
		}
		sb.WriteString(" ON CONFLICT DO NOTHING")

	default:
		// SQLite-style engines: explicit ids from the generator keep the
		// shared PRIMARY KEY space collision-free.
		sb.WriteString("INSERT INTO track_points (id,race,time,lat,lon,distance,elevation,heart_rate) VALUES ")
		for j, p := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			if p.ID == 0 {
				p.ID = <-db.idGenerator
				chunk[j].ID = p.ID
			}
			writeValueTuple(&sb, ph, 8)
			args = append(args,
				p.ID, race, p.TimeUTCMs, p.Lat, p.Lon, p.DistanceM,
				nullableFloat64(p.ElevationValid, p.Elevation),
				nullableInt(p.HeartRateValid, p.HeartRate),
			)
		}
		sb.WriteString(" ON CONFLICT DO NOTHING")
	}

	if _, err := db.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("insert track points: %w", err)
	}
	return nil
}

// writeValueTuple appends "(p,p,...,p)" with n placeholders.
func writeValueTuple(sb *strings.Builder, ph func() string, n int) {
	sb.WriteString("(")
	for k := 0; k < n; k++ {
		if k > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(ph())
	}
	sb.WriteString(")")
}

// StreamTrackPoints streams one race's fixes row by row through a channel,
// ordered by time.  It avoids loading large result sets into memory and
// stops when the context is done.
func (db *Database) StreamTrackPoints(ctx context.Context, race string) (<-chan TrackPointRecord, <-chan error) {
	out := make(chan TrackPointRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		ph := newPlaceholderGenerator(db.Driver)
		query := fmt.Sprintf(`
            SELECT id, race, time, lat, lon, distance, elevation, heart_rate
            FROM track_points
            WHERE race = %s
            ORDER BY time;`, ph())

		rows, err := db.DB.QueryContext(ctx, query, race)
		if err != nil {
			errCh <- fmt.Errorf("query track points: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p   TrackPointRecord
				ele sql.NullFloat64
				hr  sql.NullInt64
			)
			if err := rows.Scan(&p.ID, &p.Race, &p.TimeUTCMs, &p.Lat, &p.Lon, &p.DistanceM, &ele, &hr); err != nil {
				errCh <- fmt.Errorf("scan track point: %w", err)
				return
			}
			if ele.Valid {
				p.Elevation, p.ElevationValid = ele.Float64, true
			}
			if hr.Valid {
				p.HeartRate, p.HeartRateValid = int(hr.Int64), true
			}
			select {
			case out <- p:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate track points: %w", err)
		}
	}()

	return out, errCh
}

// LoadTrack materializes a race's track for the correlator.  Distances were
// computed at import time, so the rows map straight onto trackpoints.
func (db *Database) LoadTrack(ctx context.Context, race string) (track.Track, error) {
	points, errs := db.StreamTrackPoints(ctx, race)

	var t track.Track
	for p := range points {
		t = append(t, track.Trackpoint{
			Lat:            p.Lat,
			Lon:            p.Lon,
			TimeUTCMs:      p.TimeUTCMs,
			DistanceM:      p.DistanceM,
			Elevation:      p.Elevation,
			ElevationValid: p.ElevationValid,
			HeartRate:      p.HeartRate,
			HeartRateValid: p.HeartRateValid,
		})
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return t, nil
}

// CountTrackPoints reports how many fixes a race has stored — used to skip
// re-imports of unchanged GPX files.
func (db *Database) CountTrackPoints(ctx context.Context, race string) (int64, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf("SELECT COUNT(*) FROM track_points WHERE race = %s", ph())
	var n int64
	if err := db.DB.QueryRowContext(ctx, query, race).Scan(&n); err != nil {
		return 0, fmt.Errorf("count track points: %w", err)
	}
	return n, nil
}
