// Package pipeline runs one synchronization: load, detect gaps, segment,
// then resample, merge and persist every segment in parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/config"
	"github.com/banshee-data/vessel.sync/internal/fsutil"
	"github.com/banshee-data/vessel.sync/internal/ingest"
	"github.com/banshee-data/vessel.sync/internal/merge"
	"github.com/banshee-data/vessel.sync/internal/monitoring"
	"github.com/banshee-data/vessel.sync/internal/resample"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
	"github.com/banshee-data/vessel.sync/internal/timeline"
	"github.com/banshee-data/vessel.sync/internal/timeutil"
	"github.com/banshee-data/vessel.sync/internal/version"
	"github.com/banshee-data/vessel.sync/internal/workpool"
)

// ErrSegment marks a segment-local failure.
var ErrSegment = errors.New("segment failed")

// Input is what a run synchronizes: files to read, or observations that
// are already in memory (Files then only labels the metadata).
type Input struct {
	Files        []string
	Observations []telemetry.Observation
}

// Deps are the collaborators of a run. Zero fields get defaults.
type Deps struct {
	Catalog *catalog.Catalog // default: catalog.Default()
	Sink    merge.Sink       // default: CSV writer into params.OutputDir
	FS      fsutil.FileSystem
	Clock   timeutil.Clock
	Logger  *slog.Logger
	Metrics *monitoring.RunMetrics
	// Emitters run after the metadata file is written.
	Emitters []Emitter
	NewRunID func() string
}

func (d *Deps) fill(p config.Params) {
	if d.Catalog == nil {
		d.Catalog = catalog.Default()
	}
	if d.FS == nil {
		d.FS = fsutil.OSFileSystem{}
	}
	if d.Sink == nil {
		w := &merge.Writer{FS: d.FS, Dir: p.OutputDir}
		if p.DisplayNames {
			w.Header = d.Catalog.Label
		}
		d.Sink = w
	}
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = monitoring.NewRunMetrics()
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
}

// run carries the state of one Run call.
type run struct {
	p       config.Params
	deps    Deps
	log     *slog.Logger
	meta    *RunMetadata
	started time.Time
}

func (r *run) reach(ctx context.Context, s Stage) {
	elapsed := r.deps.Clock.Since(r.started)
	r.meta.FinalStage = s
	r.meta.StageSeconds[s.String()] = elapsed.Seconds()
	r.deps.Metrics.ObserveStage(s.String(), elapsed)
	r.log.InfoContext(ctx, "stage reached", "stage", s.String(), "elapsed", elapsed)
}

// Run synchronizes in. Configuration and ingestion errors abort the run
// and return no metadata. Once segmentation starts the run always
// completes: failing segments are skipped and recorded, and the metadata
// is written and emitted. Emitter errors are returned alongside the
// metadata.
func Run(ctx context.Context, p config.Params, deps Deps, in Input) (*RunMetadata, error) {
	deps.fill(p)
	schema, err := deps.Catalog.Schema(p.FastStep, p.SlowStep)
	if err != nil {
		return nil, fmt.Errorf("cadence schema: %w", err)
	}

	r := &run{p: p, deps: deps, started: deps.Clock.Now()}
	r.meta = &RunMetadata{
		RunID:      deps.NewRunID(),
		Version:    version.Version,
		StartedAt:  r.started.UTC(),
		InputFiles: append([]string{}, in.Files...),
		Parameters: Parameters{
			ThresholdFactor:         p.ThresholdFactor,
			MinSegmentLengthSeconds: p.MinSegmentLength.Seconds(),
			FastStepSeconds:         p.FastStep.Seconds(),
			SlowStepSeconds:         p.SlowStep.Seconds(),
			FastColumns:             len(schema.Fast),
			SlowColumns:             len(schema.Slow),
			ValidityRules:           p.ApplyValidityRules,
		},
		UnclassifiedSensors: []string{},
		Segments:            []SegmentOutput{},
		Failures:            []SegmentFailure{},
		StageSeconds:        map[string]float64{},
	}
	ctx = monitoring.WithRunID(ctx, r.meta.RunID)
	r.log = deps.Logger

	obs := in.Observations
	if obs == nil {
		reader := ingest.Reader{Workers: p.Workers, Logger: r.log}
		if obs, err = reader.ReadFiles(ctx, in.Files); err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
	}
	sorted := obs
	if !telemetry.IsSortedByTime(obs) {
		sorted = telemetry.SortByTime(obs)
	}
	r.meta.TotalObservations = len(sorted)
	deps.Metrics.Observations.Add(float64(len(sorted)))
	r.reach(ctx, Loaded)

	gaps := timeline.NewDetector(deps.Catalog, p.ThresholdFactor).Detect(sorted)
	r.recordGaps(ctx, gaps, schema)
	r.reach(ctx, GapDetected)

	seg, err := timeline.BuildSegments(sorted, gaps.Flags, p.MinSegmentLength)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	r.recordSegmentation(ctx, seg)
	r.reach(ctx, Segmented)

	r.processSegments(ctx, sorted, seg.Segments, schema)
	r.reach(ctx, Persisted)

	r.meta.FinishedAt = deps.Clock.Now().UTC()
	return r.meta, r.emit(ctx)
}

func (r *run) recordGaps(ctx context.Context, gaps timeline.GapResult, schema catalog.Schema) {
	r.meta.GapCount = gaps.Gaps
	r.deps.Metrics.Gaps.Add(float64(gaps.Gaps))
	for id, g := range gaps.PerSensor {
		s := SensorStats{
			SensorID:     id,
			Class:        schema.ClassOf(id).String(),
			Observations: g.Observations,
			Gaps:         g.Gaps,
		}
		if g.Observations > 1 {
			s.GapRate = float64(g.Gaps) / float64(g.Observations-1)
		}
		r.meta.Sensors = append(r.meta.Sensors, s)
	}
	sortSensors(r.meta.Sensors)

	for _, id := range gaps.Unclassified {
		r.log.WarnContext(ctx, "sensor has no nominal interval; excluded from gap detection and resampling",
			"sensor_id", id, "observations", gaps.PerSensor[id].Observations)
		r.meta.Warnings = append(r.meta.Warnings, fmt.Sprintf("sensor %s has no nominal interval", id))
	}
	r.meta.UnclassifiedSensors = append(r.meta.UnclassifiedSensors, gaps.Unclassified...)
}

func (r *run) recordSegmentation(ctx context.Context, seg timeline.Segmentation) {
	r.meta.DistinctTimestamps = len(seg.Timeline)
	r.meta.SegmentsBeforeFilter = seg.Candidates
	r.meta.SegmentsAfterFilter = len(seg.Segments)
	r.meta.TotalDurationSeconds = seg.TotalDuration.Seconds()
	r.meta.RetainedDurationSeconds = seg.RetainedDuration.Seconds()
	r.meta.SegmentDurations = durationStats(seg.Segments)
	r.meta.Dropped = seg.Dropped

	r.deps.Metrics.Segments.WithLabelValues("candidate").Set(float64(seg.Candidates))
	r.deps.Metrics.Segments.WithLabelValues("valid").Set(float64(len(seg.Segments)))
	r.deps.Metrics.Segments.WithLabelValues("dropped").Set(float64(len(seg.Dropped)))

	if len(seg.Segments) == 0 {
		r.log.WarnContext(ctx, "no segment reaches the minimum length",
			"candidates", seg.Candidates, "min_length", r.p.MinSegmentLength)
		r.meta.Warnings = append(r.meta.Warnings, "no segment reaches the minimum length")
		return
	}
	r.log.InfoContext(ctx, "segmentation complete",
		"candidates", seg.Candidates, "valid", len(seg.Segments),
		"retained", seg.RetainedDuration, "total", seg.TotalDuration)
}

// processSegments resamples, merges and persists each segment as an
// independent task. Each task reads only its own window of the sorted
// observations.
func (r *run) processSegments(ctx context.Context, sorted []telemetry.Observation, segs []timeline.Segment, schema catalog.Schema) {
	fast := resample.ClassSpec{Name: catalog.Fast.String(), Step: schema.FastStep, Columns: schema.Columns(catalog.Fast)}
	slow := resample.ClassSpec{Name: catalog.Slow.String(), Step: schema.SlowStep, Columns: schema.Columns(catalog.Slow)}
	var rules map[string]catalog.ValidityRule
	if r.p.ApplyValidityRules {
		rules = r.deps.Catalog.Rules()
	}
	resampler := resample.Resampler{Logger: r.log}

	tasks := make([]workpool.Task[SegmentOutput], len(segs))
	for i, s := range segs {
		window := telemetry.Window(sorted, s.Start, s.End)
		tasks[i] = workpool.Task[SegmentOutput]{
			Key: "segment-" + strconv.Itoa(s.ID),
			Run: func(ctx context.Context) (SegmentOutput, error) {
				return r.processSegment(ctx, resampler, s, window, fast, slow, rules)
			},
		}
	}

	results := workpool.Run(ctx, workpool.Options{
		Workers:     r.p.Workers,
		TaskTimeout: r.p.SegmentTimeout,
		OnDone: func(res workpool.Result[any]) {
			r.deps.Metrics.SegmentTime.Observe(res.Elapsed.Seconds())
		},
	}, tasks)

	for i, res := range results {
		s := segs[i]
		if res.Err != nil {
			f := SegmentFailure{
				SegID:  s.ID,
				Start:  s.StartTime(),
				End:    s.EndTime(),
				Reason: res.Err.Error(),
			}
			var se *stageError
			if errors.As(res.Err, &se) {
				f.Stage = se.stage.String()
				f.Reason = se.err.Error()
			}
			r.meta.Failures = append(r.meta.Failures, f)
			r.log.ErrorContext(ctx, "segment skipped", "seg_id", s.ID, "stage", f.Stage, "reason", f.Reason)
			continue
		}
		out := res.Value
		out.Seconds = res.Elapsed.Seconds()
		r.meta.Segments = append(r.meta.Segments, out)
		r.meta.MaskedCells += out.Masked
	}
	r.deps.Metrics.Segments.WithLabelValues("persisted").Set(float64(len(r.meta.Segments)))
	r.deps.Metrics.Segments.WithLabelValues("failed").Set(float64(len(r.meta.Failures)))
	r.deps.Metrics.Masked.Add(float64(r.meta.MaskedCells))
}

func (r *run) processSegment(ctx context.Context, rs resample.Resampler, s timeline.Segment, window []telemetry.Observation,
	fast, slow resample.ClassSpec, rules map[string]catalog.ValidityRule) (SegmentOutput, error) {
	out := SegmentOutput{SegID: s.ID, Start: s.StartTime(), End: s.EndTime()}

	fastTbl, err := rs.Resample(ctx, s, window, fast)
	if err != nil {
		return out, failAt(Resampled, fmt.Errorf("%w: %w", ErrSegment, err))
	}
	slowTbl, err := rs.Resample(ctx, s, window, slow)
	if err != nil {
		return out, failAt(Resampled, fmt.Errorf("%w: %w", ErrSegment, err))
	}

	m, err := merge.Join(fastTbl, slowTbl)
	if err != nil {
		return out, failAt(Merged, fmt.Errorf("%w: %w", ErrSegment, err))
	}
	if rules != nil {
		out.Masked = merge.ApplyRules(m, rules)
	}
	out.Rows = len(m.Times)
	out.Coverage = coverage(m)

	path, err := r.deps.Sink.Write(ctx, m)
	if err != nil {
		return out, failAt(Persisted, fmt.Errorf("%w: %w", ErrSegment, err))
	}
	out.Path = path
	r.log.DebugContext(ctx, "segment persisted", "seg_id", s.ID, "rows", out.Rows, "path", path)
	return out, nil
}

// coverage is the fraction of non-NaN cells in m.
func coverage(m *merge.Merged) float64 {
	cells := len(m.Times) * len(m.Columns)
	if cells == 0 {
		return 0
	}
	filled := make([]float64, len(m.Columns))
	for c, col := range m.Values {
		for _, v := range col {
			if !math.IsNaN(v) {
				filled[c]++
			}
		}
	}
	return floats.Sum(filled) / float64(cells)
}

// emit writes the metadata file, the metrics textfile and then runs every
// configured emitter. Emitter failures are collected, not fatal to each
// other.
func (r *run) emit(ctx context.Context) error {
	var errs []error
	file := MetadataFile{FS: r.deps.FS, Dir: r.p.OutputDir}
	if err := file.Emit(ctx, r.meta); err != nil {
		errs = append(errs, fmt.Errorf("metadata file: %w", err))
	}
	if r.p.MetricsPath != "" {
		if err := r.deps.Metrics.WriteTextfile(r.p.MetricsPath); err != nil {
			errs = append(errs, fmt.Errorf("metrics textfile: %w", err))
		}
	}
	for _, e := range r.deps.Emitters {
		if err := e.Emit(ctx, r.meta); err != nil {
			errs = append(errs, err)
		}
	}
	for _, err := range errs {
		r.log.ErrorContext(ctx, "run metadata not fully emitted", "error", err)
	}
	r.log.InfoContext(ctx, "run complete",
		"segments", len(r.meta.Segments), "failed", len(r.meta.Failures),
		"retained_hours", r.meta.RetainedDurationSeconds/3600)
	return errors.Join(errs...)
}
