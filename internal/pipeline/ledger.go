package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/vessel.sync/internal/db"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// Ledger records every run and its segment outcomes in the sqlite run
// ledger.
type Ledger struct {
	DB *db.DB
}

func (l Ledger) Emit(ctx context.Context, meta *RunMetadata) error {
	run, segs := ledgerRecords(meta)
	if err := l.DB.RecordRun(ctx, run, segs); err != nil {
		return fmt.Errorf("run ledger: %w", err)
	}
	return nil
}

func ledgerRecords(meta *RunMetadata) (db.RunRecord, []db.SegmentRecord) {
	run := db.RunRecord{
		RunID:              meta.RunID,
		StartedAt:          meta.StartedAt,
		FinishedAt:         meta.FinishedAt,
		InputFiles:         len(meta.InputFiles),
		Observations:       meta.TotalObservations,
		DistinctTimestamps: meta.DistinctTimestamps,
		Gaps:               meta.GapCount,
		CandidateSegments:  meta.SegmentsBeforeFilter,
		ValidSegments:      meta.SegmentsAfterFilter,
		PersistedSegments:  len(meta.Segments),
		FailedSegments:     len(meta.Failures),
		TotalDuration:      secondsToDuration(meta.TotalDurationSeconds),
		RetainedDuration:   secondsToDuration(meta.RetainedDurationSeconds),
		ThresholdFactor:    meta.Parameters.ThresholdFactor,
		MinSegmentLength:   secondsToDuration(meta.Parameters.MinSegmentLengthSeconds),
		FinalStage:         meta.FinalStage.String(),
	}

	segs := make([]db.SegmentRecord, 0, len(meta.Segments)+len(meta.Failures))
	for _, s := range meta.Segments {
		segs = append(segs, db.SegmentRecord{
			RunID:  meta.RunID,
			SegID:  s.SegID,
			Start:  telemetry.UnixNano(s.Start),
			End:    telemetry.UnixNano(s.End),
			Rows:   s.Rows,
			Status: db.SegmentPersisted,
			Output: s.Path,
		})
	}
	for _, f := range meta.Failures {
		segs = append(segs, db.SegmentRecord{
			RunID:  meta.RunID,
			SegID:  f.SegID,
			Start:  telemetry.UnixNano(f.Start),
			End:    telemetry.UnixNano(f.End),
			Status: db.SegmentFailed,
			Reason: f.Reason,
		})
	}
	return run, segs
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
