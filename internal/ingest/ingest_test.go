package ingest

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/vessel.sync/internal/catalog"
	"github.com/banshee-data/vessel.sync/internal/telemetry"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 15, 0, time.UTC)
	for _, s := range []string{
		"2024-03-01T12:00:15Z",
		"2024-03-01T12:00:15+00:00",
		"2024-03-01 12:00:15+00:00",
		"2024-03-01 12:00:15",
		"2024-03-01T14:00:15+02:00",
		" 2024-03-01 12:00:15.000 ",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s -> %s", s, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := ParseTimestamp("01/03/2024 noon")
	assert.Error(t, err)
}

func TestReadCSV(t *testing.T) {
	src := "utc_timestamp,qid_mapping,value,time_delta_sec,quantity_name\n" +
		"2024-01-01 00:00:00+00:00,a,1.5,,Speed\n" +
		"2024-01-01 00:00:15+00:00,a,,15,Speed\n" +
		"2024-01-01 00:00:15+00:00,b,-3,15.2,Power\n"

	obs, err := ReadCSV(strings.NewReader(src), "jan.csv")
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, "a", obs[0].SensorID)
	assert.Equal(t, 1.5, obs[0].Value)
	assert.False(t, obs[0].HasTimeDelta())
	assert.True(t, math.IsNaN(obs[1].Value))
	assert.Equal(t, 15.0, obs[1].TimeDelta)
	assert.Equal(t, -3.0, obs[2].Value)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 15, 0, time.UTC), obs[2].Time())
}

func TestReadCSV_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", "header required"},
		{"missing value", "utc_timestamp,sensor_id\n2024-01-01,a\n", `"value"`},
		{"missing timestamp", "sensor_id,value\na,1\n", `"utc_timestamp"`},
		{"bad timestamp", "utc_timestamp,sensor_id,value\nyesterday,a,1\n", "x.csv:2"},
		{"bad value", "utc_timestamp,sensor_id,value\n2024-01-01,a,abc\n", "value"},
		{"empty sensor", "utc_timestamp,sensor_id,value\n2024-01-01,,1\n", "empty sensor id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.src), "x.csv")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestReader_ReadFiles(t *testing.T) {
	dir := t.TempDir()
	header := "utc_timestamp,sensor_id,value\n"
	p1 := writeFile(t, dir, "1.csv", header+"2024-01-01T00:00:00Z,a,1\n2024-01-01T00:00:15Z,a,2\n")
	p2 := writeFile(t, dir, "2.csv", header+"2024-02-01T00:00:00Z,a,3\n")

	obs, err := Reader{Workers: 2}.ReadFiles(context.Background(), []string{p1, p2})
	require.NoError(t, err)
	require.Len(t, obs, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{obs[0].Value, obs[1].Value, obs[2].Value})

	bad := writeFile(t, dir, "3.csv", "utc_timestamp,value\n2024-01-01T00:00:00Z,1\n")
	_, err = Reader{}.ReadFiles(context.Background(), []string{p1, bad})
	assert.ErrorIs(t, err, ErrSchema)

	missing := filepath.Join(dir, "missing.csv")
	_, err = Reader{Workers: 2}.ReadFiles(context.Background(), []string{bad, p2, missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "3.csv")
	assert.Contains(t, err.Error(), "missing.csv")

	_, err = Reader{}.ReadFiles(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSchema)
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"10.csv", "2.csv", "1.csv"} {
		writeFile(t, dir, n, "")
	}
	got, err := ExpandInputs([]string{filepath.Join(dir, "*.csv"), filepath.Join(dir, "1.csv")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "1.csv"),
		filepath.Join(dir, "10.csv"),
		filepath.Join(dir, "2.csv"),
	}, got)

	_, err = ExpandInputs([]string{filepath.Join(dir, "*.parquet")})
	assert.Error(t, err)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in := []telemetry.Observation{
		{Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC).UnixNano(), SensorID: "x", Value: 7.25, TimeDelta: math.NaN()},
		{Timestamp: time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC).UnixNano(), SensorID: "x", Value: math.NaN(), TimeDelta: math.NaN()},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, in))

	out, err := ReadCSV(&buf, "roundtrip")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Timestamp, out[0].Timestamp)
	assert.Equal(t, 7.25, out[0].Value)
	assert.True(t, math.IsNaN(out[1].Value))
}

func TestReadNoonReport(t *testing.T) {
	src := "Date,Fwd Draft,Mid Draft,Fuel,Remarks\n" +
		"01/02/2024,10.1,10.4,VLSFO,ok\n" +
		"02/02/2024,10.0,,HFO,\n"

	res, err := ReadNoonReport(strings.NewReader(src), "feb.csv", catalog.NoonFieldMap("Fwd Draft", "Mid Draft", "Fuel"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Remarks"}, res.Skipped)
	assert.Equal(t, 2, res.NonNumeric)
	require.Len(t, res.Observations, 6)

	first := res.Observations[0]
	assert.Equal(t, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), first.Time())
	assert.Equal(t, 10.1, first.Value)
	assert.Equal(t, catalog.NoonFieldMap()["Fwd Draft"].SensorID, first.SensorID)
	assert.True(t, math.IsNaN(res.Observations[4].Value), "blank Mid Draft is NaN")

	_, err = ReadNoonReport(strings.NewReader("Day,Fwd Draft\n1,2\n"), "x", catalog.NoonFieldMap())
	assert.ErrorIs(t, err, ErrSchema)
	_, err = ReadNoonReport(strings.NewReader("Date,Fwd Draft\n2024-02-01,2\n"), "x", catalog.NoonFieldMap())
	assert.ErrorIs(t, err, ErrSchema)
}
