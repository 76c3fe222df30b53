package timeline

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

type nominalMap map[string]time.Duration

func (m nominalMap) Nominal(id string) (time.Duration, bool) {
	d, ok := m[id]
	return d, ok && d > 0
}

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixNano()

func at(d time.Duration) int64 { return t0 + int64(d) }

func obs(id string, d time.Duration, v float64) telemetry.Observation {
	return telemetry.Observation{Timestamp: at(d), SensorID: id, Value: v, TimeDelta: math.NaN()}
}

// series emits one observation every step over [from, to], skipping the
// open interval (holeFrom, holeTo) when holeTo > holeFrom.
func series(id string, from, to, step, holeFrom, holeTo time.Duration) []telemetry.Observation {
	var out []telemetry.Observation
	for d := from; d <= to; d += step {
		if holeTo > holeFrom && d > holeFrom && d < holeTo {
			continue
		}
		out = append(out, obs(id, d, float64(d/time.Second)))
	}
	return out
}

func TestDetector_Boundary(t *testing.T) {
	d := NewDetector(nominalMap{"a": 15 * time.Second}, 0.5)

	exact := []telemetry.Observation{
		obs("a", 0, 1),
		obs("a", 15*time.Second, 2),
		obs("a", 15*time.Second+22500*time.Millisecond, 3),
	}
	res := d.Detect(exact)
	assert.Equal(t, []bool{false, false, true}, res.Flags, "n(1+f) is a gap")

	justUnder := []telemetry.Observation{
		obs("a", 0, 1),
		obs("a", 15*time.Second, 2),
		obs("a", 15*time.Second+22500*time.Millisecond-time.Nanosecond, 3),
	}
	res = d.Detect(justUnder)
	assert.Equal(t, []bool{false, false, false}, res.Flags)

	early := []telemetry.Observation{obs("a", 0, 1), obs("a", 7500*time.Millisecond, 2)}
	assert.True(t, d.Detect(early).Flags[1], "early arrival by f·n is also a gap")
}

func TestDetector_IsGapSymmetric(t *testing.T) {
	d := NewDetector(nominalMap{}, 0.5)
	n := 24 * time.Hour
	for _, tc := range []struct {
		dt   float64
		want bool
	}{
		{12 * 3600, true},
		{12*3600 + 1, false},
		{24 * 3600, false},
		{36*3600 - 1, false},
		{36 * 3600, true},
		{48 * 3600, true},
		{math.NaN(), false},
	} {
		assert.Equal(t, tc.want, d.IsGap(tc.dt, n), "dt=%v", tc.dt)
	}
	assert.False(t, d.IsGap(1e9, 0), "no nominal, no gap")
}

func TestDetector_FirstObservationNeverFlagged(t *testing.T) {
	d := NewDetector(nominalMap{"a": 15 * time.Second, "b": time.Hour}, 0.5)
	in := []telemetry.Observation{obs("b", 10*time.Hour, 1), obs("a", 0, 1)}
	in[0].TimeDelta = 99999
	in[1].TimeDelta = 99999

	res := d.Detect(in)
	assert.Equal(t, []bool{false, false}, res.Flags)
	assert.Zero(t, res.Gaps)
}

func TestDetector_UnsortedInputAndPrecomputedDelta(t *testing.T) {
	d := NewDetector(nominalMap{"a": 15 * time.Second}, 0.5)
	in := []telemetry.Observation{
		obs("a", 60*time.Second, 3),
		obs("a", 0, 1),
		obs("a", 15*time.Second, 2),
	}
	res := d.Detect(in)
	assert.Equal(t, []bool{true, false, false}, res.Flags)
	assert.Equal(t, 1, res.Gaps)
	assert.Equal(t, 60*time.Second, in[0].Time().Sub(telemetry.FromUnixNano(t0)), "input untouched")

	// A supplied inter-arrival wins over the recomputed one.
	in[0].TimeDelta = 15
	res = d.Detect(in)
	assert.Equal(t, []bool{false, false, false}, res.Flags)
}

func TestDetector_DuplicatesInheritFirstFlag(t *testing.T) {
	d := NewDetector(nominalMap{"a": 15 * time.Second}, 0.5)
	in := []telemetry.Observation{
		obs("a", 0, 1),
		obs("a", 15*time.Second, 2),
		obs("a", 15*time.Second, 2.5),
		obs("a", 60*time.Second, 3),
		obs("a", 60*time.Second, 3.5),
	}
	res := d.Detect(in)
	assert.Equal(t, []bool{false, false, false, true, true}, res.Flags)
	assert.Equal(t, SensorGaps{Nominal: 15 * time.Second, Observations: 5, Gaps: 2}, res.PerSensor["a"])
}

func TestDetector_Unclassified(t *testing.T) {
	d := NewDetector(nominalMap{"a": 15 * time.Second}, 0.5)
	in := []telemetry.Observation{
		obs("zz", 0, 1), obs("zz", 10*time.Hour, 1),
		obs("yy", 0, 1),
		obs("a", 0, 1), obs("a", 15*time.Second, 1),
	}
	res := d.Detect(in)
	assert.Equal(t, []string{"yy", "zz"}, res.Unclassified)
	assert.Equal(t, []bool{false, false, false, false, false}, res.Flags)
	assert.Equal(t, 2, res.PerSensor["zz"].Observations)
}

func TestBuildSegments_Basic(t *testing.T) {
	in := []telemetry.Observation{
		obs("a", 0, 0), obs("b", 0, 0),
		obs("a", 15*time.Second, 0),
		obs("a", time.Hour, 0), // gap
		obs("a", time.Hour+15*time.Second, 0),
	}
	flags := []bool{false, false, false, true, false}

	seg, err := BuildSegments(in, flags, 0)
	require.NoError(t, err)
	want := []Segment{
		{ID: 1, Start: at(0), End: at(15 * time.Second)},
		{ID: 2, Start: at(time.Hour), End: at(time.Hour + 15*time.Second)},
	}
	if diff := cmp.Diff(want, seg.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, seg.Candidates)
	assert.Len(t, seg.Timeline, 4)
	assert.True(t, seg.Timeline[2].AnyGap)
	assert.Equal(t, 2, seg.Timeline[2].SegID, "gapped instant opens the next segment")
	assert.Equal(t, time.Hour+15*time.Second, seg.TotalDuration)
	assert.Equal(t, 30*time.Second, seg.RetainedDuration)
}

func TestBuildSegments_MinimumLength(t *testing.T) {
	in := []telemetry.Observation{
		obs("a", 0, 0),
		obs("a", time.Hour, 0),
		obs("a", 3*time.Hour, 0),
		obs("a", 6*time.Hour, 0),
	}
	flags := []bool{false, true, true, true}

	seg, err := BuildSegments(in, flags, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, seg.Segments, "single-timestamp runs never reach the minimum")
	assert.Equal(t, 4, seg.Candidates)
	assert.Len(t, seg.Dropped, 4)
	assert.Zero(t, seg.RetainedDuration)
}

func TestBuildSegments_Errors(t *testing.T) {
	_, err := BuildSegments([]telemetry.Observation{obs("a", 0, 0)}, nil, 0)
	assert.Error(t, err)

	seg, err := BuildSegments(nil, nil, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, seg.Segments)
}

func TestBuildSegments_DisjointOrdered(t *testing.T) {
	var in []telemetry.Observation
	in = append(in, series("a", 0, 12*time.Hour, 15*time.Second, 3*time.Hour, 3*time.Hour+10*time.Minute)...)
	in = append(in, series("b", 0, 12*time.Hour, 15*time.Second, 7*time.Hour, 7*time.Hour+time.Minute)...)

	d := NewDetector(nominalMap{"a": 15 * time.Second, "b": 15 * time.Second}, 0.5)
	seg, err := BuildSegments(in, d.Detect(in).Flags, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, seg.Segments, 3)
	for i := 1; i < len(seg.Segments); i++ {
		prev, cur := seg.Segments[i-1], seg.Segments[i]
		assert.Less(t, prev.End, cur.Start)
		assert.Greater(t, cur.ID, prev.ID)
	}
	for _, s := range seg.Segments {
		assert.GreaterOrEqual(t, s.Duration(), 2*time.Hour)
	}

	got, ok := seg.SegmentOf(at(5 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 2, got.ID)
	_, ok = seg.SegmentOf(at(13 * time.Hour))
	assert.False(t, ok)
}

func vesselScenario(total, outageFrom time.Duration) []telemetry.Observation {
	var in []telemetry.Observation
	in = append(in, series("A", 0, total, 15*time.Second, 0, 0)...)
	in = append(in, series("B", 0, total, 15*time.Second, outageFrom, outageFrom+20*time.Minute)...)
	in = append(in, series("C", 0, total, time.Hour, 0, 0)...)
	return in
}

var scenarioNominals = nominalMap{"A": 15 * time.Second, "B": 15 * time.Second, "C": time.Hour}

func TestScenario_TwoValidSegments(t *testing.T) {
	in := vesselScenario(5*time.Hour, 150*time.Minute)
	d := NewDetector(scenarioNominals, 0.5)
	res := d.Detect(in)
	assert.Equal(t, 1, res.Gaps)

	seg, err := BuildSegments(in, res.Flags, 2*time.Hour)
	require.NoError(t, err)
	want := []Segment{
		{ID: 1, Start: at(0), End: at(170*time.Minute - 15*time.Second)},
		{ID: 2, Start: at(170 * time.Minute), End: at(5 * time.Hour)},
	}
	assert.Equal(t, want, seg.Segments)
}

func TestScenario_ShortSideDropped(t *testing.T) {
	in := vesselScenario(3*time.Hour, 125*time.Minute)
	d := NewDetector(scenarioNominals, 0.5)

	seg, err := BuildSegments(in, d.Detect(in).Flags, 2*time.Hour)
	require.NoError(t, err)
	require.Len(t, seg.Segments, 1)
	assert.Equal(t, Segment{ID: 1, Start: at(0), End: at(145*time.Minute - 15*time.Second)}, seg.Segments[0])
	require.Len(t, seg.Dropped, 1)
	assert.Equal(t, 2, seg.Dropped[0].ID)
}

func TestScenario_DailyReportMissingDay(t *testing.T) {
	d := NewDetector(nominalMap{"a": time.Minute, "noon": 24 * time.Hour}, 0.5)
	minutes := series("a", 0, 72*time.Hour, time.Minute, 0, 0)

	daily := append(append([]telemetry.Observation{}, minutes...),
		obs("noon", 12*time.Hour, 10.1), obs("noon", 36*time.Hour, 10.2), obs("noon", 60*time.Hour, 10.3))
	res := d.Detect(daily)
	assert.Zero(t, res.Gaps)
	seg, err := BuildSegments(daily, res.Flags, 0)
	require.NoError(t, err)
	assert.Equal(t, []Segment{{ID: 1, Start: at(0), End: at(72 * time.Hour)}}, seg.Segments)

	missing := append(append([]telemetry.Observation{}, minutes...),
		obs("noon", 12*time.Hour, 10.1), obs("noon", 60*time.Hour, 10.3))
	res = d.Detect(missing)
	assert.Equal(t, 1, res.Gaps)
	assert.True(t, res.Flags[len(missing)-1], "48h between daily reports is a gap")
	seg, err = BuildSegments(missing, res.Flags, 0)
	require.NoError(t, err)
	want := []Segment{
		{ID: 1, Start: at(0), End: at(60*time.Hour - time.Minute)},
		{ID: 2, Start: at(60 * time.Hour), End: at(72 * time.Hour)},
	}
	if diff := cmp.Diff(want, seg.Segments); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
}
