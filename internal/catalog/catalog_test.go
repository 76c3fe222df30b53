package catalog

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testCatalogCSV = `sensor_id,display_name,unit,provider,nominal_interval_seconds,min_value,max_value
rpm,Main Engine Rotational Speed,rpm,CAMS,15,0,
stw,Speed Through Water,knots,Speedlog,15,0,30
wave,Wave Height,m,Provider MB,3600,,
depth,Water Depth,m,Echosounder,,,
`

func mustLoad(t *testing.T, src string) *Catalog {
	t.Helper()
	c, err := LoadCSV(strings.NewReader(src))
	require.NoError(t, err)
	return c
}

func TestLoadCSV(t *testing.T) {
	c := mustLoad(t, testCatalogCSV)
	assert.Equal(t, 4, c.Len())

	n, ok := c.Nominal("rpm")
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, n)

	n, ok = c.Nominal("wave")
	require.True(t, ok)
	assert.Equal(t, time.Hour, n)

	_, ok = c.Nominal("depth")
	assert.False(t, ok, "blank interval means no declared cadence")

	_, ok = c.Nominal("unknown")
	assert.False(t, ok)

	assert.Equal(t, "Speed Through Water (knots)", c.Label("stw"))
	assert.Equal(t, "unknown", c.Label("unknown"))
}

func TestLoadCSV_Aliases(t *testing.T) {
	c := mustLoad(t, "qid_mapping,quantity_name,intended_sampling_interval_seconds\nabc,Thing,15\n")
	e, ok := c.Lookup("abc")
	require.True(t, ok)
	assert.Equal(t, "Thing", e.DisplayName)
	assert.Equal(t, 15*time.Second, e.NominalInterval)
}

func TestLoadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"no sensor column", "name,unit\nx,m\n"},
		{"bad interval", "sensor_id,nominal_interval_seconds\na,fast\n"},
		{"zero interval", "sensor_id,nominal_interval_seconds\na,0\n"},
		{"duplicate", "sensor_id,nominal_interval_seconds\na,15\na,15\n"},
		{"bad bound", "sensor_id,min_value\na,low\n"},
		{"inverted bounds", "sensor_id,min_value,max_value\na,10,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCSV(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog), "got %v", err)
		})
	}
}

func TestValidityRule(t *testing.T) {
	c := mustLoad(t, testCatalogCSV)
	rules := c.Rules()
	require.Contains(t, rules, "stw")
	assert.NotContains(t, rules, "wave")

	r := rules["stw"]
	assert.True(t, r.Valid(12))
	assert.True(t, r.Valid(0))
	assert.True(t, r.Valid(30))
	assert.False(t, r.Valid(-0.1))
	assert.False(t, r.Valid(31))
	assert.True(t, r.Valid(math.NaN()))
}

func TestSchema(t *testing.T) {
	c := mustLoad(t, testCatalogCSV)
	s, err := c.Schema(15*time.Second, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, []string{"rpm", "stw"}, s.Fast)
	assert.Equal(t, []string{"wave"}, s.Slow)
	assert.Equal(t, Fast, s.ClassOf("rpm"))
	assert.Equal(t, Slow, s.ClassOf("wave"))
	assert.Equal(t, Unclassified, s.ClassOf("depth"))
	assert.Equal(t, Unclassified, s.ClassOf("nope"))
	assert.Equal(t, time.Hour, s.Step(Slow))

	cols := s.Columns(Fast)
	cols[0] = "mutated"
	assert.Equal(t, "rpm", s.Fast[0], "Columns must return a copy")

	_, err = c.Schema(time.Hour, 15*time.Second)
	assert.Error(t, err)
	_, err = c.Schema(0, time.Hour)
	assert.Error(t, err)
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Metrics registration.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"qid_mapping", "quantity_name", "unit", "nominal_interval_seconds"},
		{"rpm", "Main Engine Rotational Speed", "rpm", 15},
		{"wave", "Wave Height", "m", 3600},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	n, ok := c.Nominal("wave")
	require.True(t, ok)
	assert.Equal(t, time.Hour, n)
	assert.Equal(t, "Main Engine Rotational Speed (rpm)", c.Label("rpm"))
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFile("catalog.json")
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestDefault(t *testing.T) {
	c := Default()
	s, err := c.Schema(15*time.Second, time.Hour)
	require.NoError(t, err)
	assert.Len(t, s.Fast, 23)
	assert.Len(t, s.Slow, 17)
	assert.Equal(t, "3::0::1::0_1::1::0::2::0_11::0::2::0_8", s.Fast[0])
}

func TestDefault_LabelsAreUnique(t *testing.T) {
	c := Default()
	s, err := c.Schema(15*time.Second, time.Hour)
	require.NoError(t, err)

	seen := map[string]string{}
	for _, id := range append(append([]string{}, s.Fast...), s.Slow...) {
		l := c.Label(id)
		prev, dup := seen[l]
		assert.False(t, dup, "label %q shared by %s and %s", l, prev, id)
		seen[l] = id
	}

	assert.Equal(t, "Vessel External Conditions Wave Significant Height (m) [Provider MB]",
		c.Label("4::0::4::0_1::1::0::7::0_45::0::1::0_8"))
	assert.Equal(t, "Vessel External Conditions Wave Significant Height (m) [Provider S]",
		c.Label("4::0::8::0_1::1::0::7::0_45::0::1::0_8"))
	assert.Equal(t, "Main Engine Turbocharger Rotational Speed (rpm) [Transducer RPM]",
		c.Label("1::0::15::0_1::2::0::3::0_1::0::6::0_8"))
	assert.Equal(t, "Vessel Hull Aft Draft (m)", c.Label("3::0::1::0_1::1::0::2::0_11::0::2::0_8"))
	assert.Equal(t, "Noon Report Aft Draft (m)", c.Label("0::0::0::0_0::0::0::0::0_0::0::0::0_4"))
}

func TestLabel_Collisions(t *testing.T) {
	c := mustLoad(t, `sensor_id,display_name,unit,provider,nominal_interval_seconds,min_value,max_value
a,Wave Height,m,Provider MB,3600,,
b,Wave Height,m,Provider MB,3600,,
c,Wave Height,m,,3600,,
d,Wave Height,m,Provider S,3600,,
e,Sea Temp,,,3600,,
`)
	assert.Equal(t, "Wave Height (m) [Provider MB] [a]", c.Label("a"))
	assert.Equal(t, "Wave Height (m) [Provider MB] [b]", c.Label("b"))
	assert.Equal(t, "Wave Height (m)", c.Label("c"))
	assert.Equal(t, "Wave Height (m) [Provider S]", c.Label("d"))
	assert.Equal(t, "Sea Temp", c.Label("e"))
}

func TestDefault_NoonDrafts(t *testing.T) {
	c := Default()
	s, err := c.Schema(15*time.Second, time.Hour)
	require.NoError(t, err)
	for name, f := range NoonFieldMap(DraftNoonFields...) {
		e, ok := c.Lookup(f.SensorID)
		require.True(t, ok, name)
		assert.Equal(t, 24*time.Hour, e.NominalInterval, name)
		assert.Equal(t, f.Unit, e.Unit, name)
		assert.Equal(t, Slow, s.ClassOf(f.SensorID), name)
	}
}

func TestNoonFieldMap(t *testing.T) {
	all := NoonFieldMap()
	assert.Len(t, all, len(NoonReportFields))

	drafts := NoonFieldMap(DraftNoonFields...)
	assert.Len(t, drafts, 3)
	assert.Equal(t, "m", drafts["Mid Draft"].Unit)
	assert.True(t, strings.HasSuffix(drafts["Fwd Draft"].SensorID, "_2"))
}
