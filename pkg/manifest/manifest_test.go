package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeFile is a fixture helper that creates parents as needed.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()

	// One race, two sources, plus directories Scan must ignore.
	writeFile(t, filepath.Join(dir, "city-marathon", "official", "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "city-marathon", "official", "b.JPG"), "x")
	writeFile(t, filepath.Join(dir, "city-marathon", "official", "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, "city-marathon", "official", "race_info.json"),
		`{"activity":{"start_time":1705795200000}}`) // 2024-01-21 UTC
	writeFile(t, filepath.Join(dir, "city-marathon", "fans", "c.png"), "x")
	writeFile(t, filepath.Join(dir, "city-marathon", "fans", "photos_list.json"),
		`{"result":{"topicInfoList":[{"url_hq":"http://cdn/x/c.png","gps_latitude":30.5,"gps_longitude":120.5}]}}`)
	writeFile(t, filepath.Join(dir, "_drafts", "s", "d.jpg"), "x")
	writeFile(t, filepath.Join(dir, ".cache", "s", "e.jpg"), "x")
	writeFile(t, filepath.Join(dir, "empty-race", "src", "readme.md"), "x")

	got, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}

	lat, lon := 30.5, 120.5
	want := Manifest{Races: []Race{{
		Name: "city-marathon",
		Date: "2024-01-21",
		Sources: []Source{
			{Name: "fans", Photos: []Photo{
				{URL: "images/city-marathon/fans/c.png", Name: "c.png", Lat: &lat, Lon: &lon},
			}},
			{Name: "official", Photos: []Photo{
				{URL: "images/city-marathon/official/a.jpg", Name: "a.jpg"},
				{URL: "images/city-marathon/official/b.JPG", Name: "b.JPG"},
			}},
		},
	}}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("scan mismatch (-want +got):\n%s", diff)
	}
}

func TestScanMissingDir(t *testing.T) {
	got, err := Scan(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing directory should scan to empty, got error %v", err)
	}
	if len(got.Races) != 0 {
		t.Errorf("got %d races from nothing", len(got.Races))
	}
}

func TestScanSortsLatestFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "older", "s", "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "older", "s", "race_info.json"), `{"activity":{"start_time":1700000000000}}`)
	writeFile(t, filepath.Join(dir, "newer", "s", "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "newer", "s", "race_info.json"), `{"activity":{"start_time":1710000000000}}`)

	got, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Races) != 2 || got.Races[0].Name != "newer" {
		t.Errorf("races not sorted latest-first: %+v", got.Races)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	lat := 31.0
	lon := 121.0
	m := Manifest{Races: []Race{{
		Name: "r", Date: "2024-03-01",
		Sources: []Source{{Name: "s", Photos: []Photo{
			{URL: "images/r/s/p.jpg", Name: "p.jpg", Lat: &lat, Lon: &lon},
		}}},
	}}}

	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBrokenSidecarsFailSoft(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "race", "s", "a.jpg"), "x")
	writeFile(t, filepath.Join(dir, "race", "s", "race_info.json"), "{not json")
	writeFile(t, filepath.Join(dir, "race", "s", "photos_list.json"), "also broken")

	got, err := Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Races) != 1 || got.Races[0].Date != "" {
		t.Errorf("broken sidecars should degrade, not fail: %+v", got.Races)
	}
	if got.Races[0].Sources[0].Photos[0].Lat != nil {
		t.Error("GPS from a broken sidecar")
	}
}
