// Package manifest reads, writes, and regenerates the gallery manifest: the
// JSON index of races, photo sources, and photos that the web UI and the
// importer both consume.  The on-disk layout is one directory per race, one
// subdirectory per source, photos inside.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Photo is a single gallery image.  Platforms that geotag their exports fill
// Lat/Lon; most leave them nil and the correlator places the photo from its
// timestamp instead.
type Photo struct {
	URL  string   `json:"url"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// Source groups the photos one platform delivered for a race.
type Source struct {
	Name   string  `json:"name"`
	Photos []Photo `json:"photos"`
}

// Race is one event: a name, its date (YYYY-MM-DD, may be empty when no
// activity metadata was found), and the per-platform photo sets.
type Race struct {
	Name    string   `json:"name"`
	Date    string   `json:"date"`
	Sources []Source `json:"sources"`
}

// Manifest is the top-level gallery index.
type Manifest struct {
	Races []Race `json:"races"`
}

// Load reads a manifest file.
func Load(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

// Save writes the manifest atomically: a temporary file in the same directory
// is renamed over the destination, so readers never observe a half-written
// index.
func Save(destPath string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".manifest-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// imageExtensions lists the file suffixes Scan treats as photos.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Scan rebuilds a manifest from an images directory.  Each top-level
// subdirectory is a race, each second-level subdirectory a source.  Hidden
// and underscore-prefixed directories are skipped.  Photo URLs are written
// relative to the web root as images/<race>/<source>/<file>.
//
// Two sidecar files enrich the result when present: race_info.json supplies
// the race date from its activity start time, and photos_list.json supplies
// per-photo GPS coordinates keyed by file name.  Both are optional and both
// fail soft — a broken sidecar degrades the manifest, it never aborts the
// scan.
func Scan(imagesDir string) (Manifest, error) {
	var m Manifest
	m.Races = []Race{}

	raceDirs, err := os.ReadDir(imagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("scan images dir: %w", err)
	}

	for _, raceDir := range raceDirs {
		if !raceDir.IsDir() || strings.HasPrefix(raceDir.Name(), ".") || strings.HasPrefix(raceDir.Name(), "_") {
			continue
		}
		race := Race{Name: raceDir.Name(), Sources: []Source{}}
		racePath := filepath.Join(imagesDir, raceDir.Name())

		sourceDirs, err := os.ReadDir(racePath)
		if err != nil {
			continue
		}

		for _, sourceDir := range sourceDirs {
			if !sourceDir.IsDir() || strings.HasPrefix(sourceDir.Name(), ".") {
				continue
			}
			sourcePath := filepath.Join(racePath, sourceDir.Name())

			if race.Date == "" {
				race.Date = readRaceDate(filepath.Join(sourcePath, "race_info.json"))
			}
			gps := readGPSLookup(filepath.Join(sourcePath, "photos_list.json"))

			source := Source{Name: sourceDir.Name()}
			files, err := os.ReadDir(sourcePath)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
					continue
				}
				if !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
					continue
				}
				photo := Photo{
					URL:  path.Join("images", race.Name, source.Name, f.Name()),
					Name: f.Name(),
				}
				if pos, ok := gps[f.Name()]; ok {
					lat, lon := pos[0], pos[1]
					photo.Lat, photo.Lon = &lat, &lon
				}
				source.Photos = append(source.Photos, photo)
			}

			if len(source.Photos) > 0 {
				race.Sources = append(race.Sources, source)
			}
		}

		if len(race.Sources) > 0 {
			m.Races = append(m.Races, race)
		}
	}

	// Latest race first, like the gallery front page.
	sort.SliceStable(m.Races, func(i, j int) bool {
		return m.Races[i].Date > m.Races[j].Date
	})

	return m, nil
}

// readRaceDate extracts YYYY-MM-DD from a race_info.json activity start time
// (epoch milliseconds).  Empty string when the file is absent or malformed.
func readRaceDate(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var info struct {
		Activity struct {
			StartTime int64 `json:"start_time"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(data, &info); err != nil || info.Activity.StartTime == 0 {
		return ""
	}
	return time.UnixMilli(info.Activity.StartTime).UTC().Format("2006-01-02")
}

// readGPSLookup builds a file-name → [lat, lon] map from a platform
// photos_list.json export.  The photo list lives either at the top level or
// under a result wrapper depending on the platform's API version.
func readGPSLookup(path string) map[string][2]float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var payload struct {
		TopicInfoList []gpsEntry `json:"topicInfoList"`
		Result        struct {
			TopicInfoList []gpsEntry `json:"topicInfoList"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	entries := payload.Result.TopicInfoList
	if len(entries) == 0 {
		entries = payload.TopicInfoList
	}

	lookup := make(map[string][2]float64)
	for _, e := range entries {
		if e.URLHQ == "" || e.Lat == 0 || e.Lon == 0 {
			continue
		}
		name := e.URLHQ
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		lookup[name] = [2]float64{e.Lat, e.Lon}
	}
	return lookup
}

type gpsEntry struct {
	URLHQ string  `json:"url_hq"`
	Lat   float64 `json:"gps_latitude"`
	Lon   float64 `json:"gps_longitude"`
}
