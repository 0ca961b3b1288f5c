package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// =====================
// Photo storage
// =====================

// InsertPhotos stores gallery photos in chunks with the same idempotent
// ON CONFLICT policy as track points: re-running the importer over an
// unchanged manifest is a no-op.
func (db *Database) InsertPhotos(ctx context.Context, photos []PhotoRecord) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}
	for i := 0; i < len(photos); {
		end := i + insertBatchSize
		if end > len(photos) {
			end = len(photos)
		}
		if err := db.insertPhotoChunk(ctx, photos[i:end]); err != nil {
			return err
		}
		i = end
	}
	return nil
}

func (db *Database) insertPhotoChunk(ctx context.Context, chunk []PhotoRecord) error {
	if len(chunk) == 0 {
		return nil
	}

	var sb strings.Builder
	ph := newPlaceholderGenerator(db.Driver)
	args := make([]any, 0, len(chunk)*8)

	switch db.Driver {
	case "pgx":
		sb.WriteString("INSERT INTO photos (race,source,url,name,shoot_time,lat,lon) VALUES ")
		for j, p := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			writeValueTuple(&sb, ph, 7)
			args = append(args,
				p.Race, p.Source, p.URL, p.Name,
				nullableInt64(p.ShootTimeValid, p.ShootTime),
				nullableFloat64(p.PositionValid, p.Lat),
				nullableFloat64(p.PositionValid, p.Lon),
			)
		}
		sb.WriteString(" ON CONFLICT ON CONSTRAINT photos_unique DO NOTHING")

	case "duckdb":
		sb.WriteString("INSERT INTO photos (race,source,url,name,shoot_time,lat,lon) VALUES ")
		for j, p := range chunk {
			if j > 0 {
				sb.WriteString(",")
			}
			writeValueTuple(&sb, ph, 7)
			args = append(args,
				p.Race, p.Source, p.URL, p.Name,
				nullableInt64(p.ShootTimeValid, p.ShootTime),
				nullableFloat64(p.PositionValid, p.Lat),
				nullableFloat64(p.PositionValid, p.Lon),
			)
		}
		sb.WriteString(" ON CONFLICT DO NOTHING")

	default:
		sb.WriteString("INSERT INTO photos (id,race,source,url,name,shoot_time,lat,lon) VALUES ")
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
				p.ID, p.Race, p.Source, p.URL, p.Name,
				nullableInt64(p.ShootTimeValid, p.ShootTime),
				nullableFloat64(p.PositionValid, p.Lat),
				nullableFloat64(p.PositionValid, p.Lon),
			)
		}
		sb.WriteString(" ON CONFLICT DO NOTHING")
	}

	if _, err := db.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("insert photos: %w", err)
	}
	return nil
}

// StreamPhotosByRace streams one race's photos ordered by source and shoot
// time so handlers can correlate while rows are still arriving.
func (db *Database) StreamPhotosByRace(ctx context.Context, race string) (<-chan PhotoRecord, <-chan error) {
	out := make(chan PhotoRecord)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		ph := newPlaceholderGenerator(db.Driver)
		query := fmt.Sprintf(`
            SELECT id, race, source, url, name, shoot_time, lat, lon
            FROM photos
            WHERE race = %s
            ORDER BY source, shoot_time;`, ph())

		rows, err := db.DB.QueryContext(ctx, query, race)
		if err != nil {
			errCh <- fmt.Errorf("query photos: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				p     PhotoRecord
				shoot sql.NullInt64
				lat   sql.NullFloat64
				lon   sql.NullFloat64
			)
			if err := rows.Scan(&p.ID, &p.Race, &p.Source, &p.URL, &p.Name, &shoot, &lat, &lon); err != nil {
				errCh <- fmt.Errorf("scan photo: %w", err)
				return
			}
			if shoot.Valid {
				p.ShootTime, p.ShootTimeValid = shoot.Int64, true
			}
			if lat.Valid && lon.Valid {
				p.Lat, p.Lon, p.PositionValid = lat.Float64, lon.Float64, true
			}
			select {
			case out <- p:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate photos: %w", err)
		}
	}()

	return out, errCh
}
