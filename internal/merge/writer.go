package merge

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/vessel.sync/internal/fsutil"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// fileStamp formats segment bounds in file names.
const fileStamp = "20060102T150405Z"

// Sink receives finished segment tables. It is the hand-off point to the
// cleaning and aggregation stages.
type Sink interface {
	Write(ctx context.Context, m *Merged) (string, error)
}

// HeaderFunc maps a sensor id to its column header.
type HeaderFunc func(sensorID string) string

// SegmentFileName names a segment file by its bounds.
func SegmentFileName(start, end int64) string {
	return fmt.Sprintf("segment_%s_%s.csv",
		telemetry.FromUnixNano(start).Format(fileStamp),
		telemetry.FromUnixNano(end).Format(fileStamp))
}

// Writer persists merged segments as CSV files under Dir. Output bytes
// depend only on the table, so reruns reproduce identical files.
type Writer struct {
	FS     fsutil.FileSystem
	Dir    string
	Header HeaderFunc
}

// NewWriter returns a Writer on the OS filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir}
}

// Write renders m and stores it atomically. It returns the file path.
func (w *Writer) Write(ctx context.Context, m *Merged) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := w.Encode(m)
	if err != nil {
		return "", fmt.Errorf("encode segment %d: %w", m.SegID, err)
	}
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(w.Dir, SegmentFileName(m.Start, m.End))
	if err := fsutil.WriteAtomic(w.FS, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write segment %d: %w", m.SegID, err)
	}
	return path, nil
}

// Encode renders m as CSV: utc_timestamp, seg_id, then one column per
// sensor. NaN cells are empty.
func (w *Writer) Encode(m *Merged) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	header := make([]string, 0, len(m.Columns)+2)
	header = append(header, "utc_timestamp", "seg_id")
	for _, c := range m.Columns {
		if w.Header != nil {
			c = w.Header(c)
		}
		header = append(header, c)
	}
	if err := cw.Write(header); err != nil {
		return nil, err
	}

	segID := strconv.Itoa(m.SegID)
	rec := make([]string, len(header))
	for r, ts := range m.Times {
		rec[0] = telemetry.FromUnixNano(ts).Format(time.RFC3339Nano)
		rec[1] = segID
		for c := range m.Columns {
			rec[c+2] = formatValue(m.Values[c][r])
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
