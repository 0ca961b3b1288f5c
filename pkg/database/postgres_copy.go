package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// insertTrackPointsPostgreSQLCopy streams a whole track into PostgreSQL using
// COPY.  A temporary table keeps COPY's throughput while the final INSERT
// still enforces the ON CONFLICT policy of the main table.
func (db *Database) insertTrackPointsPostgreSQLCopy(ctx context.Context, race string, points []TrackPointRecord) error {
	if len(points) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}

	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	// Timestamp-based suffix keeps names unique per call while staying
	// predictable for debugging.  No ON COMMIT DROP so the table survives
	// autocommit mode long enough for COPY and the merge to finish.
	tempTable := fmt.Sprintf("temp_track_points_%d", time.Now().UnixNano())
	createTemp := fmt.Sprintf(`CREATE TEMP TABLE %s (
race TEXT,
time BIGINT,
lat DOUBLE PRECISION,
lon DOUBLE PRECISION,
distance DOUBLE PRECISION,
elevation DOUBLE PRECISION,
heart_rate INTEGER
)`, tempTable)
	if _, err := conn.ExecContext(ctx, createTemp); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	// Cleanup even when COPY fails; a detached context avoids blocking
	// shutdown when the caller's context is already cancelled.
	dropCtx, dropCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer dropCancel()
	defer conn.ExecContext(dropCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", tempTable))

	rows := make([][]interface{}, 0, len(points))
	for _, p := range points {
		rows = append(rows, []interface{}{
			race, p.TimeUTCMs, p.Lat, p.Lon, p.DistanceM,
			nullableFloat64(p.ElevationValid, p.Elevation),
			nullableInt(p.HeartRateValid, p.HeartRate),
		})
	}

	copyErr := conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		_, err := direct.Conn().CopyFrom(
			ctx,
			pgx.Identifier{tempTable},
			[]string{"race", "time", "lat", "lon", "distance", "elevation", "heart_rate"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
	if copyErr != nil {
		return fmt.Errorf("copy track points into temp table: %w", copyErr)
	}

	insertFromTemp := fmt.Sprintf(`INSERT INTO track_points
(race,time,lat,lon,distance,elevation,heart_rate)
SELECT race,time,lat,lon,distance,elevation,heart_rate FROM %s
ON CONFLICT ON CONSTRAINT track_points_unique DO NOTHING`, tempTable)
	if _, err := conn.ExecContext(ctx, insertFromTemp); err != nil {
		return fmt.Errorf("merge temp track points: %w", err)
	}

	return nil
}
