// Package telemetry defines the long-format sensor observation shared by
// every stage of the synchronization pipeline.
package telemetry

import (
	"math"
	"sort"
	"time"
)

// Observation is a single sensor reading in long format.
// Timestamp is UTC unix nanoseconds. TimeDelta is the precomputed
// inter-arrival in seconds supplied by the ingestion collaborator, or NaN
// when the input did not carry one.
type Observation struct {
	Timestamp int64
	SensorID  string
	Value     float64
	TimeDelta float64
}

// Time returns the observation instant as a UTC time.Time.
func (o Observation) Time() time.Time {
	return time.Unix(0, o.Timestamp).UTC()
}

// HasTimeDelta reports whether a precomputed inter-arrival is present.
func (o Observation) HasTimeDelta() bool {
	return !math.IsNaN(o.TimeDelta)
}

// UnixNano converts t to the Observation timestamp representation.
func UnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// FromUnixNano converts an Observation timestamp back to a UTC time.
func FromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// SortByTime returns a copy of obs stably ordered by timestamp. Observations
// sharing an instant keep their ingestion order, which is what first-wins
// duplicate resolution relies on downstream.
func SortByTime(obs []Observation) []Observation {
	out := make([]Observation, len(obs))
	copy(out, obs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// IsSortedByTime reports whether obs is in non-decreasing timestamp order.
func IsSortedByTime(obs []Observation) bool {
	return sort.SliceIsSorted(obs, func(i, j int) bool {
		return obs[i].Timestamp < obs[j].Timestamp
	})
}

// Window returns the sub-slice of time-sorted obs whose timestamps fall in
// the closed interval [start, end]. The result aliases obs.
func Window(sorted []Observation, start, end int64) []Observation {
	lo := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Timestamp >= start
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].Timestamp > end
	})
	if lo >= hi {
		return nil
	}
	return sorted[lo:hi]
}
