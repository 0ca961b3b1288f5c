package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// =====================
// Race metadata helpers
// =====================

// UpsertRace records a race name/date pair.  Re-importing updates the date
// when the manifest learned it later, and leaves existing rows alone
// otherwise.
func (db *Database) UpsertRace(ctx context.Context, name, date string) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("empty race name")
	}

	ph := newPlaceholderGenerator(db.Driver)
	now := time.Now().Unix()

	switch db.Driver {
	case "pgx", "duckdb":
		query := fmt.Sprintf(`INSERT INTO races (name,date,created_at) VALUES (%s,%s,%s)
ON CONFLICT (name) DO UPDATE SET date = EXCLUDED.date WHERE EXCLUDED.date <> ''`,
			ph(), ph(), ph())
		_, err := db.DB.ExecContext(ctx, query, name, date, now)
		if err != nil && isUniqueConstraintError(err) {
			return nil
		}
		return err
	default:
		id := <-db.idGenerator
		query := fmt.Sprintf(`INSERT INTO races (id,name,date,created_at) VALUES (%s,%s,%s,%s)
ON CONFLICT (name) DO UPDATE SET date = excluded.date WHERE excluded.date <> ''`,
			ph(), ph(), ph(), ph())
		_, err := db.DB.ExecContext(ctx, query, id, name, date, now)
		if err != nil && isUniqueConstraintError(err) {
			return nil
		}
		return err
	}
}

// GetRace fetches one race row.  A missing race returns sql.ErrNoRows
// untouched so handlers can map it to 404 without string matching.
func (db *Database) GetRace(ctx context.Context, name string) (RaceRecord, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf("SELECT id, name, date, created_at FROM races WHERE name = %s LIMIT 1", ph())

	var (
		r       RaceRecord
		date    sql.NullString
		created sql.NullInt64
	)
	err := db.DB.QueryRowContext(ctx, query, name).Scan(&r.ID, &r.Name, &date, &created)
	if err != nil {
		return r, err
	}
	r.Date = date.String
	r.CreatedAt = created.Int64
	return r, nil
}

// CountRaces reports the total number of races for overview pages.
func (db *Database) CountRaces(ctx context.Context) (int64, error) {
	var n int64
	if err := db.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM races").Scan(&n); err != nil {
		return 0, fmt.Errorf("count races: %w", err)
	}
	return n, nil
}

// StreamRaceSummaries streams races with photo/point counts using keyset
// pagination over the race name.  startAfter is the last race name the
// client has seen ("" for the first page); limit caps the page so naive
// clients do not pull everything.  Callers wanting latest-first re-sort the
// page by date; pages stay stable because the cursor is the unique name.
func (db *Database) StreamRaceSummaries(ctx context.Context, startAfter string, limit int) (<-chan RaceSummary, <-chan error) {
	results := make(chan RaceSummary)
	errs := make(chan error, 1)

	go func() {
		defer close(results)
		defer close(errs)

		if limit <= 0 {
			limit = 100
		}

		ph := newPlaceholderGenerator(db.Driver)
		query := fmt.Sprintf(`SELECT r.name, r.date,
  (SELECT COUNT(*) FROM photos p WHERE p.race = r.name) AS photo_count,
  (SELECT COUNT(*) FROM track_points t WHERE t.race = r.name) AS point_count
FROM races r
WHERE r.name > %s
ORDER BY r.name
LIMIT %s;`, ph(), ph())

		rows, err := db.DB.QueryContext(ctx, query, startAfter, limit)
		if err != nil {
			errs <- fmt.Errorf("list races: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				s    RaceSummary
				date sql.NullString
			)
			if err := rows.Scan(&s.Name, &date, &s.PhotoCount, &s.PointCount); err != nil {
				errs <- fmt.Errorf("scan race summary: %w", err)
				return
			}
			s.Date = date.String
			select {
			case results <- s:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errs <- fmt.Errorf("iterate races: %w", err)
		}
	}()

	return results, errs
}
