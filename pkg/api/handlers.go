package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"race-photo-map/pkg/correlate"
	"race-photo-map/pkg/database"
	"race-photo-map/pkg/logger"
	"race-photo-map/pkg/profile"
	"race-photo-map/pkg/qrshare"
	"race-photo-map/pkg/track"
)

// =======================
// Public API entry points
// =======================

// maxUploadBytes caps GPX uploads.  Real race exports top out well under a
// few megabytes; anything larger is a mistake or abuse.
const maxUploadBytes = 32 << 20

var errRaceNotFound = errors.New("race not found")

// Handler wires the database, cache, and limiter together so HTTP routes can
// stay small and focused on translating query parameters into the
// asynchronous building blocks behind the scenes.
type Handler struct {
	DB            *database.Database
	Cache         *ResponseCache
	Limiter       *RateLimiter
	MergeWindowMs int64
	Logf          func(string, ...any)
}

// NewHandler constructs a Handler with sane defaults.  Cache, limiter, and
// logf are all optional; pass nil to disable them.
func NewHandler(db *database.Database, cache *ResponseCache, limiter *RateLimiter, mergeWindowMs int64, logf func(string, ...any)) *Handler {
	if mergeWindowMs <= 0 {
		mergeWindowMs = correlate.DefaultMergeWindowMs
	}
	return &Handler{DB: db, Cache: cache, Limiter: limiter, MergeWindowMs: mergeWindowMs, Logf: logf}
}

// Register attaches routes to the provided mux.  Kept tiny and declarative:
// it simply wires URLs to helpers, avoiding clever routing that could
// obscure how pages are served.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api", h.handleOverview)
	mux.HandleFunc("/api/races", h.handleRacesList)
	mux.HandleFunc("/api/races/", h.handleRaceDetail)
	mux.HandleFunc("/track", h.handleTrackPoints)
	mux.HandleFunc("/profile", h.handleProfile)
	mux.HandleFunc("/chart", h.handleChart)
	mux.HandleFunc("/upload", h.handleUpload)
	mux.HandleFunc("/qr.png", h.handleQRCode)
	mux.HandleFunc("/shorten", h.handleShorten)
	mux.HandleFunc("/s/", h.handleShortRedirect)
}

// handleOverview publishes machine-readable docs so developers understand
// which endpoints to call and how to iterate through data sets.
func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalRaces, err := h.DB.CountRaces(ctx)
	if err != nil {
		http.Error(w, "count races", http.StatusInternalServerError)
		return
	}

	overview := struct {
		Endpoints  map[string]any `json:"endpoints"`
		TotalRaces int64          `json:"totalRaces"`
	}{
		TotalRaces: totalRaces,
		Endpoints: map[string]any{
			"listRaces": map[string]any{
				"method":      "GET",
				"path":        "/api/races",
				"query":       []string{"startAfter", "limit"},
				"description": "Returns race summaries sorted by name. Use nextStartAfter to continue pagination.",
			},
			"raceDetail": map[string]any{
				"method":      "GET",
				"path":        "/api/races/{race}",
				"description": "Returns the race track summary plus photos correlated onto the track: merged map groups, out-of-range groups, and untimed photos.",
			},
			"trackPoints": map[string]any{
				"method":      "GET",
				"path":        "/track",
				"query":       []string{"race"},
				"description": "Returns the full ordered track of one race.",
			},
			"profile": map[string]any{
				"method":      "GET",
				"path":        "/profile",
				"query":       []string{"race", "max"},
				"description": "Returns down-sampled elevation/pace/heart-rate series with time and distance label axes.",
			},
			"chart": map[string]any{
				"method":      "GET",
				"path":        "/chart",
				"query":       []string{"race"},
				"description": "Renders the race profile as a standalone HTML chart.",
			},
			"upload": map[string]any{
				"method":      "POST",
				"path":        "/upload",
				"description": "Multipart GPX upload for a race (fields: race, gpx).",
			},
		},
	}

	h.respondJSON(w, overview)
}

// handleRacesList exposes paginated race summaries.
func (h *Handler) handleRacesList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	startAfter := q.Get("startAfter")
	limit := clampInt(parseIntDefault(q.Get("limit"), 100), 1, 1000)

	racesCh, errCh := h.DB.StreamRaceSummaries(ctx, startAfter, limit)

	summaries := make([]database.RaceSummary, 0, limit)
	var lastName string
	for summary := range racesCh {
		summaries = append(summaries, summary)
		lastName = summary.Name
	}
	if err := <-errCh; err != nil {
		http.Error(w, "race list error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("race list error: %v", err)
		}
		return
	}

	var next string
	if len(summaries) == limit {
		next = lastName
	}

	resp := struct {
		StartAfter     string                 `json:"startAfter"`
		Limit          int                    `json:"limit"`
		Races          []database.RaceSummary `json:"races"`
		NextStartAfter string                 `json:"nextStartAfter,omitempty"`
	}{
		StartAfter:     startAfter,
		Limit:          limit,
		Races:          summaries,
		NextStartAfter: next,
	}

	h.respondJSON(w, resp)
}

// raceDetail is the correlated view of one race: where each photo burst sits
// on the track, which photos fall outside the run, and which carry no
// timestamp at all.
type raceDetail struct {
	Race           string                 `json:"race"`
	Date           string                 `json:"date,omitempty"`
	PointCount     int                    `json:"pointCount"`
	TotalDistanceM float64                `json:"totalDistanceM"`
	Groups         []correlate.EventGroup `json:"groups"`
	OutOfRange     []correlate.TimeGroup  `json:"outOfRange"`
	Untimed        []correlate.TimedEvent `json:"untimed"`
}

// handleRaceDetail serves /api/races/{race}.  Correlation is pure CPU over
// data we just loaded, so the whole response is cached as rendered JSON.
func (h *Handler) handleRaceDetail(w http.ResponseWriter, r *http.Request) {
	race := strings.TrimPrefix(r.URL.Path, "/api/races/")
	if race == "" || strings.Contains(race, "/") {
		http.NotFound(w, r)
		return
	}

	permit, err := h.acquire(r, RequestGeneral)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	data, err := h.cached(r, "detail:"+race, func(ctx context.Context) ([]byte, error) {
		return h.loadRaceDetail(ctx, race)
	})
	if errors.Is(err, errRaceNotFound) {
		http.Error(w, "race not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "race detail error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("race detail %s: %v", race, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (h *Handler) loadRaceDetail(ctx context.Context, race string) ([]byte, error) {
	rec, err := h.DB.GetRace(ctx, race)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errRaceNotFound
	}
	if err != nil {
		return nil, err
	}

	t, err := h.DB.LoadTrack(ctx, race)
	if err != nil {
		return nil, err
	}

	photosCh, errCh := h.DB.StreamPhotosByRace(ctx, race)
	var events []correlate.TimedEvent
	for p := range photosCh {
		ev := correlate.TimedEvent{URL: p.URL, Name: p.Name, Source: p.Source}
		if p.ShootTimeValid {
			ev.Timestamp = correlate.FormatLocalTime(p.ShootTime, "2006-01-02 15:04:05")
		}
		events = append(events, ev)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	res := correlate.Correlate(t, events, h.MergeWindowMs)

	detail := raceDetail{
		Race:           rec.Name,
		Date:           rec.Date,
		PointCount:     len(t),
		TotalDistanceM: t.TotalDistanceM(),
		Groups:         res.Groups,
		OutOfRange:     res.OutOfRange,
		Untimed:        res.Untimed,
	}
	return json.MarshalIndent(detail, "", "  ")
}

// handleTrackPoints serves the full ordered track of one race.
func (h *Handler) handleTrackPoints(w http.ResponseWriter, r *http.Request) {
	race := r.URL.Query().Get("race")
	if race == "" {
		http.Error(w, "missing race parameter", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	pointsCh, errCh := h.DB.StreamTrackPoints(ctx, race)
	points := []database.TrackPointRecord{}
	for p := range pointsCh {
		points = append(points, p)
	}
	if err := <-errCh; err != nil {
		http.Error(w, "track error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("track %s: %v", race, err)
		}
		return
	}
	if len(points) == 0 {
		http.Error(w, "race not found", http.StatusNotFound)
		return
	}

	resp := struct {
		Race   string                      `json:"race"`
		Points []database.TrackPointRecord `json:"points"`
	}{Race: race, Points: points}

	h.respondJSON(w, resp)
}

// handleProfile serves the down-sampled chart series for one race.
func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	race := r.URL.Query().Get("race")
	if race == "" {
		http.Error(w, "missing race parameter", http.StatusBadRequest)
		return
	}
	maxSamples := clampInt(parseIntDefault(r.URL.Query().Get("max"), profile.DefaultMaxSamples), 2, 5000)

	t, err := h.DB.LoadTrack(r.Context(), race)
	if err != nil {
		http.Error(w, "profile error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("profile %s: %v", race, err)
		}
		return
	}

	p, ok := profile.Build(t, maxSamples)
	if !ok {
		http.Error(w, "track too short for a profile", http.StatusNotFound)
		return
	}

	resp := struct {
		Race string `json:"race"`
		profile.Profile
	}{Race: race, Profile: p}

	h.respondJSON(w, resp)
}

// handleUpload ingests one GPX file for a race.  The importer buffers its
// detailed log and prints it only when something goes wrong.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	permit, err := h.acquire(r, RequestHeavy)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}

	race := strings.TrimSpace(r.FormValue("race"))
	if race == "" || strings.ContainsAny(race, "/\\") {
		http.Error(w, "missing or invalid race field", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("gpx")
	if err != nil {
		http.Error(w, "missing gpx file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	logger.Begin(race)
	logger.Append(race, fmt.Sprintf("[%s] upload %q from %s", race, header.Filename, clientIP(r)))

	t, err := h.importGPX(r, race, file)
	if err != nil {
		logger.FlushError(race, err)
		http.Error(w, "gpx import failed", http.StatusUnprocessableEntity)
		return
	}
	logger.Success(race, fmt.Sprintf("imported %q: %d points, %.1f km", header.Filename, len(t), t.TotalDistanceM()/1000))

	h.Cache.Invalidate("detail:" + race)

	resp := struct {
		Race           string  `json:"race"`
		PointCount     int     `json:"pointCount"`
		TotalDistanceM float64 `json:"totalDistanceM"`
	}{Race: race, PointCount: len(t), TotalDistanceM: t.TotalDistanceM()}

	h.respondJSON(w, resp)
}

func (h *Handler) importGPX(r *http.Request, race string, file io.Reader) (track.Track, error) {
	raw, err := track.DecodeGPX(file)
	if err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}
	logger.Append(race, fmt.Sprintf("[%s] decoded %d raw points", race, len(raw)))

	if fixed := track.RepairLeadingElevation(raw); fixed > 0 {
		logger.Append(race, fmt.Sprintf("[%s] repaired %d altimeter warm-up elevations", race, fixed))
	}

	t := track.ParseTrack(raw)
	if len(t) == 0 {
		return nil, errors.New("no usable points in gpx")
	}
	logger.Append(race, fmt.Sprintf("[%s] parsed %d usable points, %.1f km", race, len(t), t.TotalDistanceM()/1000))

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

	ctx := r.Context()
	if err := h.DB.InsertTrackPoints(ctx, race, records); err != nil {
		return nil, err
	}
	if err := h.DB.UpsertRace(ctx, race, correlate.FormatLocalTime(t.Start(), "2006-01-02")); err != nil {
		return nil, err
	}
	return t, nil
}

// handleQRCode renders a QR PNG for a share URL.  Only same-host relative
// URLs and short links are allowed, so the endpoint cannot be abused as a QR
// generator for arbitrary content.
func (h *Handler) handleQRCode(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Host != "" && parsed.Host != r.Host) {
		http.Error(w, "foreign urls not allowed", http.StatusBadRequest)
		return
	}
	if parsed.Host == "" {
		parsed.Scheme = schemeFor(r)
		parsed.Host = r.Host
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if err := qrshare.EncodePNG(w, parsed.String(), qrshare.Options{}); err != nil && h.Logf != nil {
		h.Logf("qr render: %v", err)
	}
}

// handleShorten creates (POST) or previews (GET) a short link for a gallery
// URL.
func (h *Handler) handleShorten(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := strings.TrimSpace(r.FormValue("target"))
	if target == "" {
		target = strings.TrimSpace(r.URL.Query().Get("target"))
	}
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}

	var (
		code string
		err  error
	)
	switch r.Method {
	case http.MethodGet:
		code, _, err = h.DB.PreviewShortLink(ctx, target, 0)
	case http.MethodPost:
		code, err = h.DB.PersistShortLink(ctx, target, r.FormValue("code"), time.Now(), 0)
	default:
		http.Error(w, "GET or POST only", http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		http.Error(w, "shorten error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("shorten: %v", err)
		}
		return
	}

	resp := struct {
		Code   string `json:"code"`
		Short  string `json:"short"`
		Target string `json:"target"`
	}{
		Code:   code,
		Short:  fmt.Sprintf("%s://%s/s/%s", schemeFor(r), r.Host, code),
		Target: target,
	}
	h.respondJSON(w, resp)
}

// handleShortRedirect expands /s/{code} into the stored URL.
func (h *Handler) handleShortRedirect(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/s/")
	target, err := h.DB.ResolveShortLink(r.Context(), code)
	if err != nil {
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if target == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// =====================
// Utility helpers
// =====================

// cached routes a loader through the response cache when one is configured
// and calls it directly otherwise.
func (h *Handler) cached(r *http.Request, key string, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if h.Cache == nil {
		return loader(r.Context())
	}
	return h.Cache.Get(r.Context(), key, loader)
}

// acquire asks the rate limiter for a permit; with no limiter configured it
// returns a nil permit whose Release is a no-op.
func (h *Handler) acquire(r *http.Request, kind RequestKind) (*Permit, error) {
	if h.Limiter == nil {
		return nil, nil
	}
	return h.Limiter.Acquire(r.Context(), clientIP(r), kind)
}

func (h *Handler) respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// clientIP extracts the remote host without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// schemeFor guesses the external scheme for building absolute URLs.
func schemeFor(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func parseIntDefault(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
