package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column aliases accepted in catalog files. The vessel's metrics
// registration sheet uses qid_mapping / quantity_name.
var columnAliases = map[string]string{
	"sensor_id":                          "sensor_id",
	"qid_mapping":                        "sensor_id",
	"qid":                                "sensor_id",
	"nominal_interval_seconds":           "nominal_interval_seconds",
	"intended_sampling_interval_seconds": "nominal_interval_seconds",
	"display_name":                       "display_name",
	"quantity_name":                      "display_name",
	"unit":                               "unit",
	"provider":                           "provider",
	"min_value":                          "min_value",
	"max_value":                          "max_value",
}

// LoadFile loads a catalog from a .csv or .xlsx file.
func LoadFile(path string) (*Catalog, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		defer f.Close()
		return LoadCSV(f)
	case ".xlsx":
		return LoadXLSX(path, "")
	default:
		return nil, fmt.Errorf("%w: unsupported catalog file extension %q", ErrInvalidCatalog, ext)
	}
}

// LoadCSV reads a header-led catalog CSV.
func LoadCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return fromRows(rows)
}

// LoadXLSX reads a catalog from a spreadsheet. An empty sheet name selects
// the first sheet in the workbook.
func LoadXLSX(path, sheet string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook %s has no sheets", ErrInvalidCatalog, path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInvalidCatalog, sheet, err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*Catalog, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidCatalog)
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if canon, ok := columnAliases[key]; ok {
			if _, seen := cols[canon]; !seen {
				cols[canon] = i
			}
		}
	}
	if _, ok := cols["sensor_id"]; !ok {
		return nil, fmt.Errorf("%w: missing sensor_id column", ErrInvalidCatalog)
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	entries := make([]Entry, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		id := get(row, "sensor_id")
		if id == "" {
			// Spreadsheets often carry trailing blank rows.
			continue
		}
		e := Entry{
			SensorID:    id,
			DisplayName: get(row, "display_name"),
			Unit:        get(row, "unit"),
			Provider:    get(row, "provider"),
		}
		if s := get(row, "nominal_interval_seconds"); s != "" {
			secs, err := strconv.ParseFloat(s, 64)
			if err != nil || secs <= 0 {
				return nil, fmt.Errorf("%w: row %d: nominal_interval_seconds %q must be a positive number", ErrInvalidCatalog, line, s)
			}
			e.NominalInterval = time.Duration(secs * float64(time.Second))
		}
		var err error
		if e.Rule.Min, err = optionalFloat(get(row, "min_value")); err != nil {
			return nil, fmt.Errorf("%w: row %d: min_value: %v", ErrInvalidCatalog, line, err)
		}
		if e.Rule.Max, err = optionalFloat(get(row, "max_value")); err != nil {
			return nil, fmt.Errorf("%w: row %d: max_value: %v", ErrInvalidCatalog, line, err)
		}
		entries = append(entries, e)
	}
	return New(entries)
}

func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
