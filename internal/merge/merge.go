// Package merge joins the fast and slow cadence grids of a segment into
// one wide table and persists it as a standalone CSV.
package merge

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/resample"
)

// Merged is the outer join of a segment's cadence tables, keyed by
// (timestamp, seg id). Columns are the fast columns followed by the slow
// ones, each in declared order.
type Merged struct {
	SegID   int
	Start   int64
	End     int64
	Times   []int64
	Columns []string
	// Values is column-major, aligned with Columns and Times.
	Values [][]float64
}

// Join outer-joins fast and slow on their grid instants. Instants present
// in only one table get NaN in the other table's columns. Both tables
// must describe the same segment.
func Join(fast, slow *resample.Table) (*Merged, error) {
	if fast == nil || slow == nil {
		return nil, fmt.Errorf("join needs both cadence tables")
	}
	if fast.SegID != slow.SegID || fast.Start != slow.Start || fast.End != slow.End {
		return nil, fmt.Errorf("cannot join segment %d (%s) with segment %d (%s)",
			fast.SegID, fast.Class, slow.SegID, slow.Class)
	}

	m := &Merged{SegID: fast.SegID, Start: fast.Start, End: fast.End}
	seen := make(map[string]bool, len(fast.Columns)+len(slow.Columns))
	for _, c := range append(append([]string(nil), fast.Columns...), slow.Columns...) {
		if seen[c] {
			return nil, fmt.Errorf("segment %d: column %s in both cadence classes", fast.SegID, c)
		}
		seen[c] = true
		m.Columns = append(m.Columns, c)
	}

	rows := make(map[int64]int)
	for _, ts := range fast.Times {
		rows[ts] = 0
	}
	for _, ts := range slow.Times {
		rows[ts] = 0
	}
	m.Times = make([]int64, 0, len(rows))
	for ts := range rows {
		m.Times = append(m.Times, ts)
	}
	sort.Slice(m.Times, func(i, j int) bool { return m.Times[i] < m.Times[j] })
	for i, ts := range m.Times {
		rows[ts] = i
	}

	m.Values = make([][]float64, 0, len(m.Columns))
	for _, src := range []*resample.Table{fast, slow} {
		for c := range src.Columns {
			col := make([]float64, len(m.Times))
			for i := range col {
				col[i] = math.NaN()
			}
			for r, ts := range src.Times {
				col[rows[ts]] = src.Values[c][r]
			}
			m.Values = append(m.Values, col)
		}
	}
	return m, nil
}

// ApplyRules replaces readings outside each column's validity rule with
// NaN and returns how many cells were masked. Columns without a rule are
// left alone.
func ApplyRules(m *Merged, rules map[string]catalog.ValidityRule) int {
	masked := 0
	for c, name := range m.Columns {
		rule, ok := rules[name]
		if !ok || rule.IsZero() {
			continue
		}
		for r, v := range m.Values[c] {
			if !rule.Valid(v) {
				m.Values[c][r] = math.NaN()
				masked++
			}
		}
	}
	return masked
}
