package timeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// Segment is a maximal gap-free run of timestamps. Start and End are unix
// nanoseconds, both inclusive.
type Segment struct {
	ID    int
	Start int64
	End   int64
}

// Duration is End − Start.
func (s Segment) Duration() time.Duration {
	return time.Duration(s.End - s.Start)
}

// StartTime returns the segment start as a UTC time.
func (s Segment) StartTime() time.Time { return telemetry.FromUnixNano(s.Start) }

// EndTime returns the segment end as a UTC time.
func (s Segment) EndTime() time.Time { return telemetry.FromUnixNano(s.End) }

func (s Segment) String() string {
	return fmt.Sprintf("segment %d [%s, %s]", s.ID,
		s.StartTime().Format(time.RFC3339), s.EndTime().Format(time.RFC3339))
}

// TimelinePoint is one distinct timestamp of the any-gap series.
type TimelinePoint struct {
	Timestamp int64
	AnyGap    bool
	SegID     int
}

// Segmentation is the result of BuildSegments.
type Segmentation struct {
	// Segments holds the valid segments in start order. IDs keep their
	// candidate numbering, so gaps in the sequence mark dropped runs.
	Segments []Segment
	// Candidates is the number of runs before the minimum-length filter.
	Candidates int
	// Dropped lists the candidate runs shorter than the minimum length.
	Dropped  []Segment
	Timeline []TimelinePoint
	// TotalDuration spans the first to the last observed timestamp.
	TotalDuration time.Duration
	// RetainedDuration is the summed duration of valid segments.
	RetainedDuration time.Duration
}

// BuildSegments collapses per-observation gap flags to one any-gap signal
// per distinct timestamp and partitions the timeline into segments. A
// timestamp starts a new segment when it is the first of the dataset or
// its own any-gap flag is set, so the gapped instant opens the next
// segment. Runs shorter than minLength are discarded.
func BuildSegments(obs []telemetry.Observation, flags []bool, minLength time.Duration) (Segmentation, error) {
	var out Segmentation
	if len(flags) != len(obs) {
		return out, fmt.Errorf("gap flags length %d does not match %d observations", len(flags), len(obs))
	}
	if len(obs) == 0 {
		return out, nil
	}

	anyGap := make(map[int64]bool)
	for i, o := range obs {
		anyGap[o.Timestamp] = anyGap[o.Timestamp] || flags[i]
	}
	stamps := make([]int64, 0, len(anyGap))
	for ts := range anyGap {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })

	out.Timeline = make([]TimelinePoint, len(stamps))
	var candidates []Segment
	segID := 0
	for i, ts := range stamps {
		gap := anyGap[ts]
		if i == 0 || gap {
			segID++
			candidates = append(candidates, Segment{ID: segID, Start: ts, End: ts})
		}
		candidates[len(candidates)-1].End = ts
		out.Timeline[i] = TimelinePoint{Timestamp: ts, AnyGap: gap, SegID: segID}
	}

	out.Candidates = len(candidates)
	out.TotalDuration = time.Duration(stamps[len(stamps)-1] - stamps[0])
	for _, s := range candidates {
		if s.Duration() < minLength {
			out.Dropped = append(out.Dropped, s)
			continue
		}
		out.Segments = append(out.Segments, s)
		out.RetainedDuration += s.Duration()
	}
	return out, nil
}

// SegmentOf returns the valid segment containing ts, if any.
func (s Segmentation) SegmentOf(ts int64) (Segment, bool) {
	i := sort.Search(len(s.Segments), func(i int) bool { return s.Segments[i].End >= ts })
	if i < len(s.Segments) && s.Segments[i].Start <= ts {
		return s.Segments[i], true
	}
	return Segment{}, false
}
