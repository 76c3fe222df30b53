package resample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
	"github.com/banshee-data/vessel.sync/internal/timeline"
)

// ErrInterpolation marks a column that could not be fitted.
var ErrInterpolation = errors.New("interpolation failed")

// ClassSpec is one cadence class: its grid step and declared column order.
type ClassSpec struct {
	Name    string
	Step    time.Duration
	Columns []string
}

// Table is one cadence class of one segment on its uniform grid.
type Table struct {
	SegID int
	Class string
	// Start and End are the segment bounds the grid was built over.
	Start   int64
	End     int64
	Times   []int64
	Columns []string
	// Values is column-major, aligned with Columns and Times.
	Values [][]float64
}

// Rows returns the number of grid instants.
func (t *Table) Rows() int { return len(t.Times) }

// Column returns the values of the named column, or nil.
func (t *Table) Column(name string) []float64 {
	for i, c := range t.Columns {
		if c == name {
			return t.Values[i]
		}
	}
	return nil
}

// Resampler fills cadence grids for segments. The zero value is usable.
type Resampler struct {
	Logger *slog.Logger
}

// Resample builds the class grid over seg and fills every column by linear
// interpolation between that column's own readings. Grid instants outside
// a column's first..last reading stay NaN; nothing is extrapolated. NaN
// readings count as missing. Observations outside seg are ignored, so obs
// may be the full set or a pre-cut window.
//
// A class with no readings at all yields an all-NaN table. ctx is checked
// between columns.
func (r Resampler) Resample(ctx context.Context, seg timeline.Segment, obs []telemetry.Observation, class ClassSpec) (*Table, error) {
	grid, err := Grid(seg.Start, seg.End, class.Step)
	if err != nil {
		return nil, fmt.Errorf("segment %d %s grid: %w", seg.ID, class.Name, err)
	}

	p := Pivot(obs, class.Columns, seg.Start, seg.End)
	if p.Conflicts > 0 && r.Logger != nil {
		r.Logger.Warn("conflicting duplicate readings resolved first-wins",
			"seg_id", seg.ID, "class", class.Name, "duplicates", p.Duplicates, "conflicts", p.Conflicts)
	}

	t := &Table{
		SegID:   seg.ID,
		Class:   class.Name,
		Start:   seg.Start,
		End:     seg.End,
		Times:   grid,
		Columns: append([]string(nil), class.Columns...),
		Values:  make([][]float64, len(class.Columns)),
	}
	for c, name := range class.Columns {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("segment %d %s: %w", seg.ID, class.Name, err)
		}
		col, err := fillColumn(seg.Start, p.Times, p.Values[c], grid)
		if err != nil {
			return nil, fmt.Errorf("segment %d %s column %s: %w", seg.ID, class.Name, name, err)
		}
		t.Values[c] = col
	}
	return t, nil
}

// fillColumn interpolates one column onto grid, working in seconds since
// origin.
func fillColumn(origin int64, times []int64, values []float64, grid []int64) ([]float64, error) {
	out := nanSlice(len(grid))

	var xs, ys []float64
	var first, last int64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if len(xs) == 0 {
			first = times[i]
		}
		last = times[i]
		xs = append(xs, seconds(origin, times[i]))
		ys = append(ys, v)
	}

	switch len(xs) {
	case 0:
		return out, nil
	case 1:
		for g, ts := range grid {
			if ts == first {
				out[g] = ys[0]
			}
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInterpolation, err)
	}
	for g, ts := range grid {
		if ts < first || ts > last {
			continue
		}
		out[g] = pl.Predict(seconds(origin, ts))
	}
	return out, nil
}

func seconds(origin, ts int64) float64 {
	return float64(ts-origin) / float64(time.Second)
}
