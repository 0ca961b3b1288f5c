// Race Photo Map serves a personal gallery of race photos correlated onto
// the runner's GPS tracks: each photo burst becomes a marker on the course,
// with pace and heart rate sampled at the moment of the shot.
//
// The binary is self-contained: static assets are embedded, the database is
// a single SQLite file by default, and the whole gallery imports itself from
// an images directory at startup.
package main

import (
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"race-photo-map/pkg/api"
	"race-photo-map/pkg/database"
	"race-photo-map/pkg/database/drivers"
	"race-photo-map/pkg/logger"
	"race-photo-map/pkg/manifest"
	"race-photo-map/pkg/track"
)

//go:embed public_html/*
var content embed.FS

// CompileVersion is stamped via -ldflags at release time.
var CompileVersion = "dev"

var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: sqlite, chai, genji, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for file-based drivers)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "RacePhotoMap", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var port = flag.Int("port", 8765, "Port for running the server")
var imagesDir = flag.String("images", "docs/images", "Images directory: one subdirectory per race, one per source inside")
var manifestPath = flag.String("manifest", "", "Gallery manifest path (defaults to <images>/manifest.json; regenerated by scanning when missing)")
var mergeWindow = flag.Duration("merge-window", 10*time.Second, "Photos shot within this window collapse into one map marker")
var cacheTTL = flag.Duration("cache-ttl", time.Minute, "How long correlated race responses stay cached (0 disables)")
var heavyCooldown = flag.Duration("heavy-cooldown", 2*time.Second, "Per-IP cooldown after chart renders and uploads")
var version = flag.Bool("version", false, "Show the application version")

func main() {
	flag.Parse()
	drivers.Ready()

	if *version {
		fmt.Printf("race-photo-map version %s\n", CompileVersion)
		return
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	dbCfg := database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
	db, err := database.NewDatabase(dbCfg)
	if err != nil {
		log.Fatalf("DB init: %v", err)
	}
	if err := db.InitSchema(dbCfg); err != nil {
		log.Fatalf("DB schema: %v", err)
	}

	// Gallery import runs in background so listeners come up immediately;
	// imports are idempotent, so a restart mid-import is harmless.
	ctxImport, cancelImport := context.WithCancel(context.Background())
	defer cancelImport()
	go importGallery(ctxImport, db, *imagesDir, *manifestPath)

	// Routes and static assets.
	staticFS, err := fs.Sub(content, "public_html")
	if err != nil {
		log.Fatalf("static fs: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	if dir := *imagesDir; dir != "" {
		mux.Handle("/images/", http.StripPrefix("/images/", http.FileServer(http.Dir(dir))))
	}

	handler := api.NewHandler(db,
		api.NewResponseCache(*cacheTTL),
		api.NewRateLimiter(*heavyCooldown),
		mergeWindow.Milliseconds(),
		log.Printf,
	)
	handler.Register(mux)

	rootHandler := withServerHeader(mux)

	if *domain != "" {
		// Dual server :80 + :443 with Let's Encrypt.
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := http.ListenAndServe(addr, rootHandler); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	// Background indexes: listeners are already up, pages may be slower
	// until the indexes are ready.
	ctxIdx, cancelIdx := context.WithCancel(context.Background())
	defer cancelIdx()
	db.EnsureIndexesAsync(ctxIdx, dbCfg, func(format string, args ...any) {
		log.Printf(format, args...)
	})

	select {}
}

// withServerHeader labels every response so operators can tell which
// deployment answered.
func withServerHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "race-photo-map/"+CompileVersion)
		next.ServeHTTP(w, r)
	})
}

// importGallery loads (or rebuilds) the manifest and imports every race:
// photo rows first, then any GPX tracks found next to the photos.  All
// detail goes through the buffered logger, so a clean import prints one line
// per race.
func importGallery(ctx context.Context, db *database.Database, imagesDir, manifestFile string) {
	if manifestFile == "" {
		manifestFile = filepath.Join(imagesDir, "manifest.json")
	}

	m, err := manifest.Load(manifestFile)
	if err != nil {
		log.Printf("manifest %s not loadable (%v), rescanning %s", manifestFile, err, imagesDir)
		m, err = manifest.Scan(imagesDir)
		if err != nil {
			log.Printf("gallery scan failed: %v", err)
			return
		}
		if len(m.Races) > 0 {
			if err := manifest.Save(manifestFile, m); err != nil {
				log.Printf("manifest save: %v", err)
			}
		}
	}

	for _, race := range m.Races {
		select {
		case <-ctx.Done():
			return
		default:
		}
		importRace(ctx, db, imagesDir, race)
	}
	log.Printf("gallery import finished: %d race(s)", len(m.Races))
}

func importRace(ctx context.Context, db *database.Database, imagesDir string, race manifest.Race) {
	logger.Begin(race.Name)

	if err := db.UpsertRace(ctx, race.Name, race.Date); err != nil {
		logger.FlushError(race.Name, fmt.Errorf("upsert race: %w", err))
		return
	}

	var photos []database.PhotoRecord
	for _, source := range race.Sources {
		for _, photo := range source.Photos {
			rec := database.PhotoRecord{
				Race:   race.Name,
				Source: source.Name,
				URL:    photo.URL,
				Name:   photo.Name,
			}
			if photo.Lat != nil && photo.Lon != nil {
				rec.Lat, rec.Lon, rec.PositionValid = *photo.Lat, *photo.Lon, true
			}
			// The downloaders stamp each file's mtime with the platform's
			// shoot time, so the filesystem carries the photo clock.
			if ms, ok := photoShootTime(filepath.Join(imagesDir, race.Name, source.Name, photo.Name)); ok {
				rec.ShootTime, rec.ShootTimeValid = ms, true
			}
			photos = append(photos, rec)
		}
		logger.Append(race.Name, fmt.Sprintf("[%s] source %s: %d photos", race.Name, source.Name, len(source.Photos)))
	}
	if err := db.InsertPhotos(ctx, photos); err != nil {
		logger.FlushError(race.Name, fmt.Errorf("insert photos: %w", err))
		return
	}

	points, err := importRaceTracks(ctx, db, imagesDir, race.Name)
	if err != nil {
		logger.FlushError(race.Name, err)
		return
	}

	logger.Success(race.Name, fmt.Sprintf("%d photos, %d track points", len(photos), points))
}

// importRaceTracks parses every GPX file under the race directory and stores
// the resulting points.  Returns the total point count.
func importRaceTracks(ctx context.Context, db *database.Database, imagesDir, race string) (int, error) {
	pattern := filepath.Join(imagesDir, race, "*", "*.gpx")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("glob gpx: %w", err)
	}

	total := 0
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return total, fmt.Errorf("open %s: %w", path, err)
		}
		raw, err := track.DecodeGPX(f)
		f.Close()
		if err != nil {
			return total, fmt.Errorf("decode %s: %w", path, err)
		}

		if fixed := track.RepairLeadingElevation(raw); fixed > 0 {
			logger.Append(race, fmt.Sprintf("[%s] %s: repaired %d altimeter warm-up elevations", race, filepath.Base(path), fixed))
		}

		t := track.ParseTrack(raw)
		if len(t) == 0 {
			logger.Append(race, fmt.Sprintf("[%s] %s: no usable points, skipped", race, filepath.Base(path)))
			continue
		}

		records := make([]database.TrackPointRecord, len(t))
		for i, p := range t {
			records[i] = database.TrackPointRecord{
				Race:           race,
				TimeUTCMs:      p.TimeUTCMs,
				Lat:            p.Lat,
				Lon:            p.Lon,
				DistanceM:      p.DistanceM,
				Elevation:      p.Elevation,
				ElevationValid: p.ElevationValid,
				HeartRate:      p.HeartRate,
				HeartRateValid: p.HeartRateValid,
			}
		}
		if err := db.InsertTrackPoints(ctx, race, records); err != nil {
			return total, fmt.Errorf("insert %s: %w", path, err)
		}
		logger.Append(race, fmt.Sprintf("[%s] %s: %d points, %.1f km", race, filepath.Base(path), len(t), t.TotalDistanceM()/1000))
		total += len(t)
	}
	return total, nil
}

// photoShootTime reads a photo's mtime as epoch milliseconds.  Timestamps
// before 2000 mean the stamp was lost somewhere; treat those as untimed.
func photoShootTime(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	ms := info.ModTime().UTC().UnixMilli()
	if ms < 946684800000 { // 2000-01-01
		return 0, false
	}
	return ms, true
}

// serveWithDomain runs:
//   - :80  — ACME HTTP-01 challenges + 301 redirect to https://<domain>/…
//   - :443 — HTTPS with automatic Let's Encrypt certificates.
//
// When autocert cannot issue a certificate for a host/SNI, the server still
// answers with a previously obtained fallback cert so IP-address visits do
// not flood the logs with "host not configured".
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			// Allow the bare domain and www.<domain>.
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP address? Don't block, just don't request a cert.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	// :80 — challenge + redirect.
	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// Daily renewal probe.
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for range t.C {
			if _, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
				log.Printf("autocert renewal check: %v", err)
			}
		}
	}()

	// :443 — HTTPS.
	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS10
	tlsCfg.NextProtos = append([]string{"http/1.0"}, tlsCfg.NextProtos...)

	// Fallback certificate for IP visits and odd SNI values.
	var defaultCert *tls.Certificate
	go func() {
		for defaultCert == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert = c
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if defaultCert != nil {
			return defaultCert, nil
		}
		return nil, err
	}

	server := &http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("HTTPS server ➜ https://%s", domain)
	if err := server.ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}
