package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"race-photo-map/pkg/profile"
)

// handleChart renders a race profile as a standalone HTML page using
// go-echarts: elevation, pace, and heart rate over the chosen axis.
// Query params:
//   - race (required)
//   - axis: "time" (default) or "distance"
//   - max: sample cap, default 500
func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	race := r.URL.Query().Get("race")
	if race == "" {
		http.Error(w, "missing race parameter", http.StatusBadRequest)
		return
	}

	permit, err := h.acquire(r, RequestHeavy)
	if err != nil {
		http.Error(w, "request cancelled", http.StatusRequestTimeout)
		return
	}
	defer permit.Release()

	maxSamples := clampInt(parseIntDefault(r.URL.Query().Get("max"), profile.DefaultMaxSamples), 2, 5000)

	t, err := h.DB.LoadTrack(r.Context(), race)
	if err != nil {
		http.Error(w, "chart error", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("chart %s: %v", race, err)
		}
		return
	}

	p, ok := profile.Build(t, maxSamples)
	if !ok {
		http.Error(w, "track too short for a chart", http.StatusNotFound)
		return
	}

	axis := r.URL.Query().Get("axis")
	labels := p.TimeLabels
	axisName := "time"
	if axis == "distance" {
		labels = p.DistanceLabels
		axisName = "km"
	}

	page, err := renderProfileChart(race, labels, axisName, p, t.TotalDistanceM()/1000)
	if err != nil {
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		if h.Logf != nil {
			h.Logf("chart render %s: %v", race, err)
		}
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// renderProfileChart builds the three-axis line chart (elevation area, pace,
// optional heart rate) and renders it as a standalone HTML page.
func renderProfileChart(race string, labels []string, axisName string, p profile.Profile, totalKm float64) ([]byte, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: race + " profile",
			Width:     "1100px",
			Height:    "520px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    race,
			Subtitle: fmt.Sprintf("%d samples, %.1f km", len(labels), totalKm),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: axisName}),
		charts.WithYAxisOpts(opts.YAxis{Name: "elevation (m)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.ExtendYAxis(
		opts.YAxis{Name: "pace (min/km)", Type: "value"},
		opts.YAxis{Name: "bpm", Type: "value"},
	)

	line.SetXAxis(labels)
	line.AddSeries("elevation", lineDataFloat(p.Elevation),
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}),
	)
	line.AddSeries("pace", lineDataFloat(p.Pace),
		charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1, Smooth: opts.Bool(true)}),
	)
	if p.HasHeartRate {
		line.AddSeries("heart rate", lineDataInt(p.HeartRate),
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 2, Smooth: opts.Bool(true)}),
		)
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// lineDataFloat maps a nullable series into echarts points; nil becomes the
// "-" placeholder echarts renders as a gap instead of zero.
func lineDataFloat(series []*float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(series))
	for _, v := range series {
		if v == nil {
			data = append(data, opts.LineData{Value: "-"})
			continue
		}
		data = append(data, opts.LineData{Value: *v})
	}
	return data
}

func lineDataInt(series []*int) []opts.LineData {
	data := make([]opts.LineData, 0, len(series))
	for _, v := range series {
		if v == nil {
			data = append(data, opts.LineData{Value: "-"})
			continue
		}
		data = append(data, opts.LineData{Value: *v})
	}
	return data
}
