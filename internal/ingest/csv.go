// Package ingest reads long-format telemetry dumps into memory. Any schema
// problem (missing column, unparseable timestamp or value) is fatal: the
// ordering and cadence invariants downstream depend on well-formed input.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/vessel.sync/internal/telemetry"
	"github.com/banshee-data/vessel.sync/internal/workpool"
)

// ErrSchema marks malformed input.
var ErrSchema = errors.New("schema error")

const (
	colTimestamp = "utc_timestamp"
	colSensor    = "sensor_id"
	colValue     = "value"
	colDelta     = "time_delta_sec"
)

var headerAliases = map[string]string{
	"utc_timestamp":  colTimestamp,
	"sensor_id":      colSensor,
	"qid_mapping":    colSensor,
	"value":          colValue,
	"time_delta_sec": colDelta,
}

// timestampLayouts are tried in order. Layouts without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant as written by the vessel's
// export tooling or pandas. Naive timestamps are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// ReadCSV parses one long-format CSV. name is used in error messages.
func ReadCSV(r io.Reader, name string) ([]telemetry.Observation, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s: empty file, header required", ErrSchema, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSchema, name, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := headerAliases[key]; ok {
			if _, seen := cols[canon]; !seen {
				cols[canon] = i
			}
		}
	}
	for _, required := range []string{colTimestamp, colSensor, colValue} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s: missing required column %q", ErrSchema, name, required)
		}
	}
	tsCol, idCol, valCol := cols[colTimestamp], cols[colSensor], cols[colValue]
	deltaCol, hasDelta := cols[colDelta]

	// Sensor ids repeat millions of times; share one string per id.
	intern := make(map[string]string)
	var out []telemetry.Observation
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrSchema, name, line, err)
		}
		field := func(i int) string {
			if i < len(rec) {
				return rec[i]
			}
			return ""
		}

		ts, err := ParseTimestamp(field(tsCol))
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: %v", ErrSchema, name, line, err)
		}
		raw := strings.TrimSpace(field(idCol))
		if raw == "" {
			return nil, fmt.Errorf("%w: %s:%d: empty sensor id", ErrSchema, name, line)
		}
		id, ok := intern[raw]
		if !ok {
			id = strings.Clone(raw)
			intern[id] = id
		}
		v, err := parseFloat(field(valCol))
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: value: %v", ErrSchema, name, line, err)
		}
		delta := math.NaN()
		if hasDelta {
			if delta, err = parseFloat(field(deltaCol)); err != nil {
				return nil, fmt.Errorf("%w: %s:%d: time_delta_sec: %v", ErrSchema, name, line, err)
			}
		}

		out = append(out, telemetry.Observation{
			Timestamp: ts.UnixNano(),
			SensorID:  id,
			Value:     v,
			TimeDelta: delta,
		})
	}
	return out, nil
}

// Reader loads a set of files concurrently, one task per file.
type Reader struct {
	Workers int
	Logger  *slog.Logger
}

// ReadFiles reads every file and concatenates the observations in path
// order, so the result is independent of scheduling. Any file error aborts
// the load, and every failing file is reported.
func (r Reader) ReadFiles(ctx context.Context, paths []string) ([]telemetry.Observation, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no input files", ErrSchema)
	}

	tasks := make([]workpool.Task[[]telemetry.Observation], len(paths))
	for i, p := range paths {
		tasks[i] = workpool.Task[[]telemetry.Observation]{
			Key: p,
			Run: func(ctx context.Context) ([]telemetry.Observation, error) {
				f, err := os.Open(p)
				if err != nil {
					return nil, fmt.Errorf("open %s: %w", p, err)
				}
				defer f.Close()
				obs, err := ReadCSV(f, filepath.Base(p))
				if err != nil {
					return nil, err
				}
				logger.Info("read input file", "path", p, "observations", len(obs))
				return obs, nil
			},
		}
	}

	results := workpool.Run(ctx, workpool.Options{Workers: r.Workers}, tasks)
	if failed := workpool.Failed(results); len(failed) > 0 {
		errs := make([]error, len(failed))
		for i, res := range failed {
			errs[i] = res.Err
		}
		return nil, errors.Join(errs...)
	}
	total := 0
	for _, res := range results {
		total += len(res.Value)
	}
	all := make([]telemetry.Observation, 0, total)
	for _, res := range results {
		all = append(all, res.Value...)
	}
	return all, nil
}

// ExpandInputs resolves glob patterns into a sorted, de-duplicated file
// list. A pattern matching nothing is an error.
func ExpandInputs(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad input pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("input pattern %q matched no files", p)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// WriteCSV writes observations in the long format ReadCSV accepts.
func WriteCSV(w io.Writer, obs []telemetry.Observation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colTimestamp, colSensor, colValue}); err != nil {
		return err
	}
	for _, o := range obs {
		val := ""
		if !math.IsNaN(o.Value) {
			val = strconv.FormatFloat(o.Value, 'g', -1, 64)
		}
		rec := []string{o.Time().Format(time.RFC3339Nano), o.SensorID, val}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
