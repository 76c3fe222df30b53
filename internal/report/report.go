// Package report renders a visual summary of a run next to its segment
// files: a static coverage timeline (coverage.png) and an interactive
// chart page (report.html).
package report

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/vessel.sync/internal/fsutil"
	"github.com/banshee-data/vessel.sync/internal/pipeline"
)

const (
	CoverageFile = "coverage.png"
	HTMLFile     = "report.html"
)

// echartsAssetsHost serves the echarts javascript. Override it to point at
// a local copy on an air-gapped vessel.
var echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var (
	persistedColor = color.RGBA{R: 46, G: 139, B: 87, A: 255}
	failedColor    = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	droppedColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

// Emitter writes both report files into Dir.
type Emitter struct {
	FS  fsutil.FileSystem
	Dir string
}

// New returns an Emitter on the OS filesystem.
func New(dir string) Emitter {
	return Emitter{FS: fsutil.OSFileSystem{}, Dir: dir}
}

func (e Emitter) Emit(_ context.Context, meta *pipeline.RunMetadata) error {
	if err := e.FS.MkdirAll(e.Dir, 0o755); err != nil {
		return fmt.Errorf("report: create output dir: %w", err)
	}

	png, err := Coverage(meta)
	if err != nil {
		return fmt.Errorf("report: coverage plot: %w", err)
	}
	if png != nil {
		if err := fsutil.WriteAtomic(e.FS, filepath.Join(e.Dir, CoverageFile), png, 0o644); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	html, err := HTML(meta)
	if err != nil {
		return fmt.Errorf("report: render html: %w", err)
	}
	if err := fsutil.WriteAtomic(e.FS, filepath.Join(e.Dir, HTMLFile), html, 0o644); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// span is one bar of the coverage timeline.
type span struct {
	start, end time.Time
}

// origin is the earliest instant drawn on the timeline.
func origin(meta *pipeline.RunMetadata) (time.Time, bool) {
	var first time.Time
	consider := func(t time.Time) {
		if first.IsZero() || t.Before(first) {
			first = t
		}
	}
	for _, s := range meta.Segments {
		consider(s.Start)
	}
	for _, f := range meta.Failures {
		consider(f.Start)
	}
	for _, d := range meta.Dropped {
		consider(d.StartTime())
	}
	return first, !first.IsZero()
}

// Coverage draws every candidate segment as a horizontal bar against hours
// since the first segment start: persisted segments on the top lane,
// failed ones in the middle, dropped short segments at the bottom. It
// returns nil when there is nothing to draw.
func Coverage(meta *pipeline.RunMetadata) ([]byte, error) {
	t0, ok := origin(meta)
	if !ok {
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Segment coverage, run %s", meta.RunID)
	p.X.Label.Text = "Hours since " + t0.UTC().Format(time.RFC3339)
	p.Y.Min, p.Y.Max = 0, 4
	p.NominalY("", "dropped", "failed", "persisted", "")

	var persisted, failed, dropped []span
	for _, s := range meta.Segments {
		persisted = append(persisted, span{s.Start, s.End})
	}
	for _, f := range meta.Failures {
		failed = append(failed, span{f.Start, f.End})
	}
	for _, d := range meta.Dropped {
		dropped = append(dropped, span{d.StartTime(), d.EndTime()})
	}

	lanes := []struct {
		name  string
		y     float64
		spans []span
		color color.Color
	}{
		{"persisted", 3, persisted, persistedColor},
		{"failed", 2, failed, failedColor},
		{"dropped", 1, dropped, droppedColor},
	}
	for _, lane := range lanes {
		for i, s := range lane.spans {
			line, err := plotter.NewLine(plotter.XYs{
				{X: s.start.Sub(t0).Hours(), Y: lane.y},
				{X: s.end.Sub(t0).Hours(), Y: lane.y},
			})
			if err != nil {
				return nil, err
			}
			line.Color = lane.color
			line.Width = vg.Points(8)
			p.Add(line)
			if i == 0 {
				p.Legend.Add(lane.name, line)
			}
		}
	}
	p.Legend.Top = true

	w, err := p.WriterTo(14*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HTML renders the segment and sensor charts as one page.
func HTML(meta *pipeline.RunMetadata) ([]byte, error) {
	page := components.NewPage()
	page.SetPageTitle("vessel-sync run " + meta.RunID)
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(segmentChart(meta), sensorChart(meta))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func segmentChart(meta *pipeline.RunMetadata) *charts.Bar {
	x := make([]string, 0, len(meta.Segments))
	hours := make([]opts.BarData, 0, len(meta.Segments))
	coverage := make([]opts.BarData, 0, len(meta.Segments))
	for _, s := range meta.Segments {
		x = append(x, "seg "+strconv.Itoa(s.SegID))
		hours = append(hours, opts.BarData{Value: round(s.End.Sub(s.Start).Hours())})
		coverage = append(coverage, opts.BarData{Value: round(100 * s.Coverage)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title: "Segments",
			Subtitle: fmt.Sprintf("%d persisted, %d failed, %d dropped; %.1f of %.1f hours retained",
				len(meta.Segments), len(meta.Failures), len(meta.Dropped),
				meta.RetainedDurationSeconds/3600, meta.TotalDurationSeconds/3600),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("duration (h)", hours).
		AddSeries("coverage (%)", coverage)
	return bar
}

func sensorChart(meta *pipeline.RunMetadata) *charts.Bar {
	x := make([]string, 0, len(meta.Sensors))
	rates := make([]opts.BarData, 0, len(meta.Sensors))
	for _, s := range meta.Sensors {
		x = append(x, s.SensorID)
		rates = append(rates, opts.BarData{Name: s.Class, Value: round(100 * s.GapRate)})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Gap rate per sensor",
			Subtitle: fmt.Sprintf("%d gaps, threshold factor %g", meta.GapCount, meta.Parameters.ThresholdFactor),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sensor"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% of intervals"}),
	)
	bar.SetXAxis(x).AddSeries("gap rate", rates)
	return bar
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
