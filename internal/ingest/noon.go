package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

// noonDateLayout is the day-first date format of the noon report sheets.
const noonDateLayout = "02/01/2006"

// NoonResult is a melted noon report file.
type NoonResult struct {
	Observations []telemetry.Observation
	// Skipped lists report columns with no matching noon field.
	Skipped []string
	// NonNumeric counts cells that could not be read as numbers
	// (categorical fields such as fuel grade); they become NaN.
	NonNumeric int
}

// ReadNoonReport melts a wide noon report (one row per day, one column per
// field) into long-format observations stamped at 12:00 UTC of each day.
// Only fields present in the map are kept.
func ReadNoonReport(r io.Reader, name string, fields map[string]catalog.NoonField) (NoonResult, error) {
	var res NoonResult
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return res, fmt.Errorf("%w: %s: noon report header: %v", ErrSchema, name, err)
	}
	dateCol := -1
	type target struct {
		col   int
		field catalog.NoonField
	}
	var targets []target
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if strings.EqualFold(h, "Date") {
			dateCol = i
			continue
		}
		if f, ok := fields[h]; ok {
			targets = append(targets, target{col: i, field: f})
		} else {
			res.Skipped = append(res.Skipped, h)
		}
	}
	if dateCol < 0 {
		return res, fmt.Errorf("%w: %s: missing Date column", ErrSchema, name)
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return res, fmt.Errorf("%w: %s:%d: %v", ErrSchema, name, line, err)
		}
		if dateCol >= len(rec) || strings.TrimSpace(rec[dateCol]) == "" {
			return res, fmt.Errorf("%w: %s:%d: empty Date", ErrSchema, name, line)
		}
		day, err := time.Parse(noonDateLayout, strings.TrimSpace(rec[dateCol]))
		if err != nil {
			return res, fmt.Errorf("%w: %s:%d: Date: %v", ErrSchema, name, line, err)
		}
		noon := day.Add(12 * time.Hour).UnixNano()

		for _, tg := range targets {
			cell := ""
			if tg.col < len(rec) {
				cell = rec[tg.col]
			}
			v, err := parseFloat(cell)
			if err != nil {
				v = math.NaN()
				res.NonNumeric++
			}
			res.Observations = append(res.Observations, telemetry.Observation{
				Timestamp: noon,
				SensorID:  tg.field.SensorID,
				Value:     v,
				TimeDelta: math.NaN(),
			})
		}
	}
	return res, nil
}
