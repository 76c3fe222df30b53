package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ob(ts int64, id string) Observation {
	return Observation{Timestamp: ts, SensorID: id, TimeDelta: math.NaN()}
}

func TestSortByTime_StableAndCopy(t *testing.T) {
	in := []Observation{ob(3, "a"), ob(1, "b"), ob(3, "c"), ob(2, "d"), ob(1, "e")}
	got := SortByTime(in)

	ids := make([]string, len(got))
	for i, o := range got {
		ids[i] = o.SensorID
	}
	assert.Equal(t, []string{"b", "e", "d", "a", "c"}, ids)
	assert.True(t, IsSortedByTime(got))
	assert.False(t, IsSortedByTime(in))
	assert.Equal(t, "a", in[0].SensorID, "input untouched")
}

func TestWindow(t *testing.T) {
	sorted := []Observation{ob(1, "a"), ob(2, "b"), ob(2, "c"), ob(4, "d"), ob(6, "e")}

	tests := []struct {
		name       string
		start, end int64
		want       []string
	}{
		{"closed bounds", 2, 4, []string{"b", "c", "d"}},
		{"single instant", 6, 6, []string{"e"}},
		{"between samples", 3, 3, nil},
		{"before all", -5, 0, nil},
		{"everything", 0, 10, []string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, o := range Window(sorted, tt.start, tt.end) {
				got = append(got, o.SensorID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeConversions(t *testing.T) {
	local := time.Date(2024, 5, 1, 14, 0, 0, 500, time.FixedZone("UTC+2", 2*3600))
	ns := UnixNano(local)
	back := FromUnixNano(ns)
	assert.Equal(t, time.UTC, back.Location())
	assert.True(t, back.Equal(local))
	assert.Equal(t, 12, back.Hour())

	o := Observation{Timestamp: ns, TimeDelta: math.NaN()}
	assert.Equal(t, back, o.Time())
	assert.False(t, o.HasTimeDelta())
	o.TimeDelta = 15
	assert.True(t, o.HasTimeDelta())
}
