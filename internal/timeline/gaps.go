// Package timeline detects cadence gaps in per-sensor telemetry and
// partitions the observation timeline into gap-free segments.
package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// Nominals resolves a sensor's nominal sampling interval. The second return
// is false for sensors with no declared interval.
type Nominals interface {
	Nominal(sensorID string) (time.Duration, bool)
}

// SensorGaps summarises gap detection for one sensor.
type SensorGaps struct {
	Nominal      time.Duration
	Observations int
	Gaps         int
}

// GapResult is the output of Detect. Flags is aligned index-for-index with
// the input observations.
type GapResult struct {
	Flags     []bool
	Gaps      int
	PerSensor map[string]SensorGaps
	// Unclassified lists, sorted, the sensors with no nominal interval.
	// They never carry a gap flag.
	Unclassified []string
}

// Detector flags observations whose inter-arrival deviates from the
// sensor's nominal interval by at least factor × nominal.
type Detector struct {
	nominals Nominals
	factor   float64
}

// NewDetector returns a Detector for the given interval table and
// threshold factor.
func NewDetector(nominals Nominals, thresholdFactor float64) *Detector {
	return &Detector{nominals: nominals, factor: thresholdFactor}
}

// IsGap reports whether an inter-arrival of dt seconds violates nominal.
// The boundary is inclusive: dt == nominal*(1+factor) is a gap.
// Early arrivals are symmetric, so dt == nominal*(1-factor) is a gap too.
func (d *Detector) IsGap(dt float64, nominal time.Duration) bool {
	if math.IsNaN(dt) || nominal <= 0 {
		return false
	}
	n := nominal.Seconds()
	return math.Abs(dt-n) >= d.factor*n
}

// Detect annotates every observation with a gap flag. obs is not modified
// and need not be sorted.
//
// Within a sensor, observations are visited in time order (ties in input
// order). The first observation of a sensor is never a gap. A repeated
// (timestamp, sensor) pair inherits the flag of its first occurrence. When
// an observation carries a precomputed TimeDelta it is used as-is,
// otherwise the inter-arrival is measured from the sensor's previous
// distinct timestamp.
func (d *Detector) Detect(obs []telemetry.Observation) GapResult {
	res := GapResult{
		Flags:     make([]bool, len(obs)),
		PerSensor: make(map[string]SensorGaps),
	}

	bySensor := make(map[string][]int)
	var order []string
	for i, o := range obs {
		if _, ok := bySensor[o.SensorID]; !ok {
			order = append(order, o.SensorID)
		}
		bySensor[o.SensorID] = append(bySensor[o.SensorID], i)
	}

	for _, id := range order {
		idx := bySensor[id]
		nominal, ok := d.nominals.Nominal(id)
		if !ok {
			res.Unclassified = append(res.Unclassified, id)
			res.PerSensor[id] = SensorGaps{Observations: len(idx)}
			continue
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return obs[idx[a]].Timestamp < obs[idx[b]].Timestamp
		})

		stats := SensorGaps{Nominal: nominal, Observations: len(idx)}
		prevTS := obs[idx[0]].Timestamp
		prevFlag := false
		for k, i := range idx {
			o := obs[i]
			if k == 0 {
				continue
			}
			if o.Timestamp == prevTS {
				res.Flags[i] = prevFlag
				if prevFlag {
					stats.Gaps++
				}
				continue
			}
			dt := float64(o.Timestamp-prevTS) / float64(time.Second)
			if o.HasTimeDelta() {
				dt = o.TimeDelta
			}
			flag := d.IsGap(dt, nominal)
			res.Flags[i] = flag
			if flag {
				stats.Gaps++
			}
			prevTS, prevFlag = o.Timestamp, flag
		}
		res.PerSensor[id] = stats
		res.Gaps += stats.Gaps
	}

	sort.Strings(res.Unclassified)
	return res
}
