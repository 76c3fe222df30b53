package resample

import (
	"math"
	"sort"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// Pivoted is a wide view of long-format observations: one row per distinct
// timestamp, one column per requested sensor.
type Pivoted struct {
	Times   []int64
	Columns []string
	// Values is column-major: Values[c][r] is Columns[c] at Times[r], NaN
	// where the sensor did not report.
	Values [][]float64
	// Duplicates counts repeated (timestamp, sensor) pairs that were
	// dropped; Conflicts is the subset whose value differed from the kept
	// one.
	Duplicates int
	Conflicts  int
}

// Pivot restricts obs to the closed range [start, end] and to columns, then
// pivots long to wide. Repeated (timestamp, sensor) pairs resolve to the
// first occurrence in slice order. Sensors not in columns are ignored;
// columns with no readings come back all-NaN.
func Pivot(obs []telemetry.Observation, columns []string, start, end int64) Pivoted {
	p := Pivoted{Columns: append([]string(nil), columns...)}
	colIdx := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := colIdx[c]; !dup {
			colIdx[c] = i
		}
	}

	type key struct {
		ts  int64
		col int
	}
	first := make(map[key]float64)
	rows := make(map[int64]struct{})
	for _, o := range obs {
		if o.Timestamp < start || o.Timestamp > end {
			continue
		}
		c, ok := colIdx[o.SensorID]
		if !ok {
			continue
		}
		k := key{o.Timestamp, c}
		if kept, seen := first[k]; seen {
			p.Duplicates++
			if !sameValue(kept, o.Value) {
				p.Conflicts++
			}
			continue
		}
		first[k] = o.Value
		rows[o.Timestamp] = struct{}{}
	}

	p.Times = make([]int64, 0, len(rows))
	for ts := range rows {
		p.Times = append(p.Times, ts)
	}
	sort.Slice(p.Times, func(i, j int) bool { return p.Times[i] < p.Times[j] })
	rowIdx := make(map[int64]int, len(p.Times))
	for i, ts := range p.Times {
		rowIdx[ts] = i
	}

	p.Values = make([][]float64, len(columns))
	for c := range p.Values {
		p.Values[c] = nanSlice(len(p.Times))
	}
	for k, v := range first {
		p.Values[k.col][rowIdx[k.ts]] = v
	}
	return p
}

func sameValue(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
