package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Database wraps the SQL connection together with the channel-based ID
// generator.  IDs flow through a channel instead of a mutex-guarded counter —
// "Don't communicate by sharing memory; share memory by communicating".
type Database struct {
	DB          *sql.DB    // The underlying SQL database connection
	idGenerator chan int64 // Channel for generating unique IDs
	Driver      string     // Normalized driver name so SQL builders can stay declarative
}

// Config holds the configuration details for initializing the database.
type Config struct {
	DBType    string // Driver name: "sqlite", "chai", "genji", "duckdb", or "pgx" (PostgreSQL)
	DBPath    string // File path for file-based engines
	DBConn    string // Raw DSN for network drivers (overrides the host/port fields)
	DBHost    string // PostgreSQL host
	DBPort    int    // PostgreSQL port
	DBUser    string // PostgreSQL user
	DBPass    string // PostgreSQL password
	DBName    string // PostgreSQL database name
	PGSSLMode string // PostgreSQL SSL mode
	Port      int    // HTTP port, used in default database file naming
}

// normalizeDBType trims and lowercases driver names so downstream switch
// blocks do not miss engine-specific handling just because a caller passed
// mixed case or incidental whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// startIDGenerator launches a goroutine for generating unique IDs.
func startIDGenerator(initialID int64) chan int64 {
	idChannel := make(chan int64)
	go func(start int64) {
		currentID := start
		for {
			idChannel <- currentID
			currentID++
		}
	}(initialID)
	return idChannel
}

// NewDatabase opens the connection and configures pooling.  File-based
// engines (SQLite, Chai, Genji, DuckDB) are forced into single-connection
// mode so concurrent imports never fight over the file lock.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	var (
		dsn                string
		applySQLitePragmas bool
	)

	switch driverName {
	case "sqlite":
		applySQLitePragmas = true
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("race-photo-map-%d.%s", config.Port, driverName)
		}
	case "chai", "genji":
		// Both reuse sqlite-style file DSNs but manage their own caching and
		// transactions, so SQLite PRAGMA tuning is intentionally skipped.
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("race-photo-map-%d.%s", config.Port, driverName)
		}
	case "duckdb":
		dsn = config.DBPath
		if dsn == "" {
			dsn = fmt.Sprintf("race-photo-map-%d.duckdb", config.Port)
		}
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			dsn = config.DBConn
		} else {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.DBType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "chai", "genji":
		// One physical connection; no concurrent statements at DB layer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if applySQLitePragmas {
			tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := tuneSQLiteLikeConnection(tuneCtx, db, log.Printf); err != nil {
				log.Printf("sqlite tuning skipped: %v", err)
			}
			cancel()
		} else {
			log.Printf("sqlite tuning skipped: driver %s manages pragmas itself", driverName)
		}
	case "duckdb":
		// DuckDB funnels writes through a single transaction log, so one
		// connection avoids unique-key races during bulk GPX imports.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneDuckDBConnection(tuneCtx, db, log.Printf); err != nil {
			log.Printf("duckdb tuning skipped: %v", err)
		}
		cancel()
	}

	// Cheap liveness probe with timeout so we don't hang at startup.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	log.Printf("Using database driver: %s with DSN: %s", driverName, dsn)

	// Bootstrap the ID generator from the highest ID across tables that carry
	// generated keys.  Errors are ignored so startup survives missing tables
	// on a fresh database.
	var (
		maxPhotos sql.NullInt64
		maxPoints sql.NullInt64
	)
	_ = db.QueryRow(`SELECT MAX(id) FROM photos`).Scan(&maxPhotos)
	_ = db.QueryRow(`SELECT MAX(id) FROM track_points`).Scan(&maxPoints)
	initialID := int64(1)
	if maxPhotos.Valid && maxPhotos.Int64 >= initialID {
		initialID = maxPhotos.Int64 + 1
	}
	if maxPoints.Valid && maxPoints.Int64 >= initialID {
		initialID = maxPoints.Int64 + 1
	}
	idChannel := startIDGenerator(initialID)

	return &Database{
		DB:          db,
		idGenerator: idChannel,
		Driver:      driverName,
	}, nil
}

// tuneSQLiteLikeConnection applies WAL/synchronous/busy pragmas for SQLite.
// The steps run through a small channel pipeline so the work happens outside
// the caller goroutine.
func tuneSQLiteLikeConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	type pragma struct {
		label     string
		query     string
		expectRow bool
	}

	steps := []pragma{
		{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
		{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
		{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
		{label: "cache_size", query: "PRAGMA cache_size=-20000;"},
		{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if step.expectRow {
				var mode string
				if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
					errs <- fmt.Errorf("apply %s: %w", step.label, err)
					return
				}
				logf("SQLite tuning %s -> %s", step.label, mode)
				continue
			}

			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
			logf("SQLite tuning %s applied", step.label)
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	return <-errs
}

// tuneDuckDBConnection raises thread count and checkpoint threshold so GPX
// imports stay CPU-bound instead of pausing on checkpoints mid-stream.
func tuneDuckDBConnection(ctx context.Context, db *sql.DB, logf func(string, ...any)) error {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}

	type pragma struct {
		label string
		query string
	}

	steps := []pragma{
		{label: "threads", query: fmt.Sprintf("PRAGMA threads=%d;", threads)},
		{label: "checkpoint_threshold", query: "PRAGMA checkpoint_threshold='1GB';"},
	}

	jobs := make(chan pragma)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		for step := range jobs {
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			default:
			}

			if _, err := db.ExecContext(ctx, step.query); err != nil {
				errs <- fmt.Errorf("apply %s: %w", step.label, err)
				return
			}
			logf("DuckDB tuning %s applied", step.label)
		}
		errs <- nil
	}()

	go func() {
		defer close(jobs)
		for _, step := range steps {
			jobs <- step
		}
	}()

	return <-errs
}

// InitSchema creates the minimal required schema synchronously so the app
// can accept traffic immediately.  Heavy indexes are built later by
// EnsureIndexesAsync in background.
func (db *Database) InitSchema(cfg Config) error {
	var schema string

	switch normalizeDBType(cfg.DBType) {
	case "pgx":
		// PostgreSQL — standard types, named UNIQUE to target by ON CONFLICT.
		schema = `
CREATE TABLE IF NOT EXISTS races (
  id         BIGSERIAL PRIMARY KEY,
  name       TEXT UNIQUE NOT NULL,
  date       TEXT,
  created_at BIGINT
);

CREATE TABLE IF NOT EXISTS photos (
  id         BIGSERIAL PRIMARY KEY,
  race       TEXT,
  source     TEXT,
  url        TEXT,
  name       TEXT,
  shoot_time BIGINT,
  lat        DOUBLE PRECISION,
  lon        DOUBLE PRECISION,
  CONSTRAINT photos_unique UNIQUE (race,source,url)
);

CREATE TABLE IF NOT EXISTS track_points (
  id         BIGSERIAL PRIMARY KEY,
  race       TEXT,
  time       BIGINT,
  lat        DOUBLE PRECISION,
  lon        DOUBLE PRECISION,
  distance   DOUBLE PRECISION,
  elevation  DOUBLE PRECISION,
  heart_rate INTEGER,
  CONSTRAINT track_points_unique UNIQUE (race,time,lat,lon)
);

CREATE TABLE IF NOT EXISTS short_links (
  id         BIGSERIAL PRIMARY KEY,
  code       TEXT UNIQUE NOT NULL,
  target     TEXT UNIQUE NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_short_links_target_lookup
  ON short_links (target);
`

	case "sqlite", "chai", "genji":
		// Portable SQLite-style side — explicit INTEGER PK, UNIQUE via index.
		schema = `
CREATE TABLE IF NOT EXISTS races (
  id         INTEGER PRIMARY KEY,
  name       TEXT NOT NULL UNIQUE,
  date       TEXT,
  created_at BIGINT
);

CREATE TABLE IF NOT EXISTS photos (
  id         INTEGER PRIMARY KEY,
  race       TEXT,
  source     TEXT,
  url        TEXT,
  name       TEXT,
  shoot_time BIGINT,
  lat        REAL,
  lon        REAL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_photos_unique
  ON photos (race,source,url);

CREATE TABLE IF NOT EXISTS track_points (
  id         INTEGER PRIMARY KEY,
  race       TEXT,
  time       BIGINT,
  lat        REAL,
  lon        REAL,
  distance   REAL,
  elevation  REAL,
  heart_rate INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_track_points_unique
  ON track_points (race,time,lat,lon);

CREATE TABLE IF NOT EXISTS short_links (
  id         INTEGER PRIMARY KEY,
  code       TEXT NOT NULL UNIQUE,
  target     TEXT NOT NULL UNIQUE,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_short_links_target_lookup
  ON short_links (target);
`

	case "duckdb":
		// DuckDB — no SERIAL/AUTOINCREMENT; sequences + DEFAULT nextval(...),
		// named UNIQUE constraints to match the upsert policy.
		schema = `
CREATE SEQUENCE IF NOT EXISTS races_id_seq START 1;
CREATE TABLE IF NOT EXISTS races (
  id         BIGINT PRIMARY KEY DEFAULT nextval('races_id_seq'),
  name       TEXT UNIQUE NOT NULL,
  date       TEXT,
  created_at BIGINT
);

CREATE SEQUENCE IF NOT EXISTS photos_id_seq START 1;
CREATE TABLE IF NOT EXISTS photos (
  id         BIGINT PRIMARY KEY DEFAULT nextval('photos_id_seq'),
  race       TEXT,
  source     TEXT,
  url        TEXT,
  name       TEXT,
  shoot_time BIGINT,
  lat        DOUBLE,
  lon        DOUBLE,
  CONSTRAINT photos_unique UNIQUE (race,source,url)
);

CREATE SEQUENCE IF NOT EXISTS track_points_id_seq START 1;
CREATE TABLE IF NOT EXISTS track_points (
  id         BIGINT PRIMARY KEY DEFAULT nextval('track_points_id_seq'),
  race       TEXT,
  time       BIGINT,
  lat        DOUBLE,
  lon        DOUBLE,
  distance   DOUBLE,
  elevation  DOUBLE,
  heart_rate INTEGER,
  CONSTRAINT track_points_unique UNIQUE (race,time,lat,lon)
);

CREATE SEQUENCE IF NOT EXISTS short_links_id_seq START 1;
CREATE TABLE IF NOT EXISTS short_links (
  id         BIGINT PRIMARY KEY DEFAULT nextval('short_links_id_seq'),
  code       TEXT UNIQUE NOT NULL,
  target     TEXT UNIQUE NOT NULL,
  created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_short_links_target_lookup
  ON short_links (target);
`

	default:
		return fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}

	if _, err := db.DB.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// EnsureIndexesAsync builds non-critical indexes in background, politely.
// - No pinned connections (important for sqlite with MaxOpenConns(1)).
// - No pre-checks: just CREATE INDEX IF NOT EXISTS.
// - Retries with exponential backoff on "database is locked"/"SQLITE_BUSY".
func (db *Database) EnsureIndexesAsync(ctx context.Context, cfg Config, logf func(string, ...any)) {
	indexes := desiredIndexesPortable(cfg.DBType)
	if len(indexes) == 0 {
		return
	}

	// Single worker: avoids DDL self-contention and keeps the app responsive.
	worker := func() {
		logf("⏳ background index build scheduled (engine=%s). Listeners are up; pages may be slower until indexes are ready.", cfg.DBType)

		for _, it := range indexes {
			start := time.Now()
			logf("▶️  start index %s", it.name)

			backoff := 50 * time.Millisecond
			for {
				select {
				case <-ctx.Done():
					logf("⏹️  stop index builder due to context cancel: %v", ctx.Err())
					return
				default:
				}

				_, err := db.DB.ExecContext(ctx, it.sql)
				if err == nil {
					logf("✅ index %s ready in %s", it.name, time.Since(start).Truncate(time.Millisecond))
					break
				}

				msg := strings.ToLower(err.Error())
				if strings.Contains(msg, "already exists") ||
					strings.Contains(msg, "duplicate key value") ||
					strings.Contains(msg, "sqlstate 23505") {
					logf("⏭️  index %s appears to exist. continue.", it.name)
					break
				}

				// busy/locked → backoff and retry, capped at 1s so uploads
				// are never starved.
				if strings.Contains(msg, "database is locked") ||
					strings.Contains(msg, "sqlite_busy") ||
					strings.Contains(msg, "locked") {
					time.Sleep(backoff)
					if backoff < time.Second {
						backoff *= 2
						if backoff > time.Second {
							backoff = time.Second
						}
					}
					continue
				}

				logf("❌ index %s failed after %s: %v", it.name, time.Since(start).Truncate(time.Millisecond), err)
				break
			}
		}
	}

	go worker()
}

// desiredIndexesPortable declares the indexes we want per engine.  Kept to
// plain CREATE INDEX IF NOT EXISTS on ordinary columns so every engine we
// support can build them.
func desiredIndexesPortable(dbType string) []struct{ name, sql string } {
	shared := []struct{ name, sql string }{
		// Track lookups always filter by race and then binary-search by time.
		{"idx_track_points_race_time",
			`CREATE INDEX IF NOT EXISTS idx_track_points_race_time ON track_points (race, time)`},
		// Distance-axis profile queries.
		{"idx_track_points_race_distance",
			`CREATE INDEX IF NOT EXISTS idx_track_points_race_distance ON track_points (race, distance)`},
		// Photo pages group by source and order by shoot time.
		{"idx_photos_race_source",
			`CREATE INDEX IF NOT EXISTS idx_photos_race_source ON photos (race, source)`},
		{"idx_photos_race_shoot_time",
			`CREATE INDEX IF NOT EXISTS idx_photos_race_shoot_time ON photos (race, shoot_time)`},
		// Front page sorts by date.
		{"idx_races_date",
			`CREATE INDEX IF NOT EXISTS idx_races_date ON races (date)`},
	}

	switch normalizeDBType(dbType) {
	case "pgx", "duckdb", "sqlite", "chai", "genji":
		return shared
	default:
		return shared
	}
}

// newPlaceholderGenerator returns a closure producing SQL placeholders in the
// dialect of the active driver: $1,$2,... for PostgreSQL, ? elsewhere.
func newPlaceholderGenerator(dbType string) func() string {
	if normalizeDBType(dbType) == "pgx" {
		counter := 0
		return func() string {
			counter++
			return fmt.Sprintf("$%d", counter)
		}
	}
	return func() string { return "?" }
}

// isUniqueConstraintError normalizes driver-specific duplicate errors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "unique violation")
}

// nullableFloat64 converts an X/XValid pair into a driver-level NULL.
func nullableFloat64(valid bool, v float64) any {
	if !valid {
		return nil
	}
	return v
}

// nullableInt converts an X/XValid pair into a driver-level NULL.
func nullableInt(valid bool, v int) any {
	if !valid {
		return nil
	}
	return v
}

// nullableInt64 converts an X/XValid pair into a driver-level NULL.
func nullableInt64(valid bool, v int64) any {
	if !valid {
		return nil
	}
	return v
}
