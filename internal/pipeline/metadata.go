package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/vessel.sync/internal/fsutil"
	"github.com/banshee-data/vessel.sync/internal/timeline"
)

// MetadataFileName is written to the output directory after every run.
const MetadataFileName = "run_metadata.json"

// RunMetadata is the audit record of one run.
type RunMetadata struct {
	RunID      string    `json:"run_id"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	FinalStage Stage     `json:"final_stage"`

	Parameters Parameters `json:"parameters"`
	InputFiles []string   `json:"input_files"`

	TotalObservations   int           `json:"total_observations"`
	DistinctTimestamps  int           `json:"distinct_timestamps"`
	GapCount            int           `json:"gap_count"`
	Sensors             []SensorStats `json:"sensors"`
	UnclassifiedSensors []string      `json:"unclassified_sensors"`

	SegmentsBeforeFilter    int                `json:"segments_before_filter"`
	SegmentsAfterFilter     int                `json:"segments_after_filter"`
	TotalDurationSeconds    float64            `json:"total_duration_seconds"`
	RetainedDurationSeconds float64            `json:"retained_duration_seconds"`
	SegmentDurations        DurationStats      `json:"segment_durations"`
	Dropped                 []timeline.Segment `json:"-"`

	Segments []SegmentOutput  `json:"segments"`
	Failures []SegmentFailure `json:"failures"`
	// MaskedCells counts values removed by validity rules.
	MaskedCells int `json:"masked_cells"`
	// Warnings collects non-fatal problems, such as an emitter that failed.
	Warnings []string `json:"warnings,omitempty"`

	// StageSeconds is the elapsed wall time at which each stage completed.
	StageSeconds map[string]float64 `json:"stage_seconds"`
}

// Parameters echoes the effective configuration of the run.
type Parameters struct {
	ThresholdFactor         float64 `json:"threshold_factor"`
	MinSegmentLengthSeconds float64 `json:"min_segment_length_seconds"`
	FastStepSeconds         float64 `json:"fast_step_seconds"`
	SlowStepSeconds         float64 `json:"slow_step_seconds"`
	FastColumns             int     `json:"fast_columns"`
	SlowColumns             int     `json:"slow_columns"`
	ValidityRules           bool    `json:"validity_rules"`
}

// SensorStats summarises one sensor's cadence.
type SensorStats struct {
	SensorID     string  `json:"sensor_id"`
	Class        string  `json:"class"`
	Observations int     `json:"observations"`
	Gaps         int     `json:"gaps"`
	GapRate      float64 `json:"gap_rate"`
}

// DurationStats summarises valid segment lengths in hours.
type DurationStats struct {
	Count       int     `json:"count"`
	MeanHours   float64 `json:"mean_hours"`
	StdDevHours float64 `json:"stddev_hours"`
	MinHours    float64 `json:"min_hours"`
	MaxHours    float64 `json:"max_hours"`
}

// SegmentOutput describes a persisted segment.
type SegmentOutput struct {
	SegID    int       `json:"seg_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Rows     int       `json:"rows"`
	Coverage float64   `json:"coverage"` // fraction of non-empty cells
	Masked   int       `json:"masked"`
	Path     string    `json:"path"`
	Seconds  float64   `json:"seconds"`
}

// SegmentFailure records a segment that was skipped.
type SegmentFailure struct {
	SegID  int       `json:"seg_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Stage  string    `json:"stage,omitempty"`
	Reason string    `json:"reason"`
}

// Emitter publishes the metadata of a finished run.
type Emitter interface {
	Emit(ctx context.Context, meta *RunMetadata) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, meta *RunMetadata) error

func (f EmitterFunc) Emit(ctx context.Context, meta *RunMetadata) error { return f(ctx, meta) }

// MetadataFile writes the metadata as indented JSON into Dir.
type MetadataFile struct {
	FS  fsutil.FileSystem
	Dir string
}

func (m MetadataFile) Emit(_ context.Context, meta *RunMetadata) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if err := m.FS.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return fsutil.WriteAtomic(m.FS, filepath.Join(m.Dir, MetadataFileName), buf.Bytes(), 0o644)
}

func durationStats(segs []timeline.Segment) DurationStats {
	out := DurationStats{Count: len(segs)}
	if len(segs) == 0 {
		return out
	}
	hours := make([]float64, len(segs))
	for i, s := range segs {
		hours[i] = s.Duration().Hours()
	}
	out.MinHours = floats.Min(hours)
	out.MaxHours = floats.Max(hours)
	if len(hours) == 1 {
		out.MeanHours = hours[0]
		return out
	}
	out.MeanHours, out.StdDevHours = stat.MeanStdDev(hours, nil)
	return out
}

func sortSensors(s []SensorStats) {
	sort.Slice(s, func(i, j int) bool { return s[i].SensorID < s[j].SensorID })
}
