package db

import (
	"context"
	"fmt"
	"time"
)

// Segment outcome labels stored in sync_segments.status.
const (
	SegmentPersisted = "persisted"
	SegmentFailed    = "failed"
)

// RunRecord is one row of sync_runs.
type RunRecord struct {
	RunID              string
	StartedAt          time.Time
	FinishedAt         time.Time
	InputFiles         int
	Observations       int
	DistinctTimestamps int
	Gaps               int
	CandidateSegments  int
	ValidSegments      int
	PersistedSegments  int
	FailedSegments     int
	TotalDuration      time.Duration
	RetainedDuration   time.Duration
	ThresholdFactor    float64
	MinSegmentLength   time.Duration
	FinalStage         string
}

// SegmentRecord is one row of sync_segments.
type SegmentRecord struct {
	RunID  string
	SegID  int
	Start  int64 // unix nanoseconds
	End    int64
	Rows   int
	Status string
	Reason string
	Output string
}

// RecordRun stores a run and its segments in one transaction.
func (db *DB) RecordRun(ctx context.Context, run RunRecord, segments []SegmentRecord) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_runs (
			run_id, started_at, finished_at, input_files, observations,
			distinct_timestamps, gaps, candidate_segments, valid_segments,
			persisted_segments, failed_segments, total_seconds, retained_seconds,
			threshold_factor, min_segment_seconds, final_stage
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.InputFiles, run.Observations,
		run.DistinctTimestamps, run.Gaps, run.CandidateSegments, run.ValidSegments,
		run.PersistedSegments, run.FailedSegments, run.TotalDuration.Seconds(), run.RetainedDuration.Seconds(),
		run.ThresholdFactor, run.MinSegmentLength.Seconds(), run.FinalStage,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_segments (run_id, seg_id, start_unix_nanos, end_unix_nanos, rows, status, reason, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range segments {
		if _, err := stmt.ExecContext(ctx, run.RunID, s.SegID, s.Start, s.End, s.Rows, s.Status, s.Reason, s.Output); err != nil {
			return fmt.Errorf("insert segment %d: %w", s.SegID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, input_files, observations,
	distinct_timestamps, gaps, candidate_segments, valid_segments,
	persisted_segments, failed_segments, total_seconds, retained_seconds,
	threshold_factor, min_segment_seconds, final_stage`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var r RunRecord
	var started, finished int64
	var total, retained, minSeg float64
	if err := row.Scan(&r.RunID, &started, &finished, &r.InputFiles, &r.Observations,
		&r.DistinctTimestamps, &r.Gaps, &r.CandidateSegments, &r.ValidSegments,
		&r.PersistedSegments, &r.FailedSegments, &total, &retained,
		&r.ThresholdFactor, &minSeg, &r.FinalStage); err != nil {
		return r, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finished).UTC()
	r.TotalDuration = seconds(total)
	r.RetainedDuration = seconds(retained)
	r.MinSegmentLength = seconds(minSeg)
	return r, nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return runs, nil
}

// Run returns one run by id. A missing run is sql.ErrNoRows.
func (db *DB) Run(ctx context.Context, runID string) (RunRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, err)
	}
	return r, nil
}

// RunSegments returns the segments of a run ordered by seg id.
func (db *DB) RunSegments(ctx context.Context, runID string) ([]SegmentRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seg_id, start_unix_nanos, end_unix_nanos, rows, status, reason, output
		FROM sync_segments
		WHERE run_id = ?
		ORDER BY seg_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var segs []SegmentRecord
	for rows.Next() {
		s := SegmentRecord{RunID: runID}
		if err := rows.Scan(&s.SegID, &s.Start, &s.End, &s.Rows, &s.Status, &s.Reason, &s.Output); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		segs = append(segs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return segs, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
