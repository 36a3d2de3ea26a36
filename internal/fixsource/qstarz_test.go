package fixsource

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

const qtravelHeader = "INDEX,RCR,UTC DATE,UTC TIME,LOCAL DATE,LOCAL TIME,MS,VALID,LATITUDE,N/S,LONGITUDE,E/W,HEIGHT,SPEED,HEADING,PDOP,HDOP,VDOP,NSAT(USED/VIEW),SAT INFO (SID-ELE-AZI-SNR),DISTANCE\n"

func qtravelRow(index int, utcDate, utcTime, localDate, localTime, lat, ns, lon, ew, height string) string {
	return strings.Join([]string{
		strconv.Itoa(index), "T", utcDate, utcTime, localDate, localTime, "0", "SPS",
		lat, ns, lon, ew, height, "1.2 km/h", "90", "1.2", "0.8", "0.9", "8(10)", "", "0.0",
	}, ",") + "\n"
}

func TestReadQstarz(t *testing.T) {
	data := qtravelHeader +
		qtravelRow(1, "2024/03/04", "13:00:00", "2024/03/04", "08:00:00", "40.716667", "N", "74.000000", "W", "12.3 M") +
		qtravelRow(2, "2024/03/04", "13:00:05", "2024/03/04", "08:00:05", "33.865143", "S", "151.209900", "E", "-3.5 M")

	fixes, err := ReadQstarz(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Len(t, fixes, 2)

	first := fixes[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), first.Time.UTC())
	assert.Equal(t, 8, first.Local.Hour())
	_, offset := first.Local.Zone()
	assert.Equal(t, -5*3600, offset)
	assert.InDelta(t, 40.716667, first.Lat, 1e-9)
	assert.InDelta(t, -74.0, first.Lon, 1e-9)
	assert.InDelta(t, 12.3, first.Elevation, 1e-9)

	second := fixes[1]
	assert.Equal(t, 1, second.Index)
	assert.InDelta(t, -33.865143, second.Lat, 1e-9)
	assert.InDelta(t, 151.2099, second.Lon, 1e-9)
	assert.InDelta(t, -3.5, second.Elevation, 1e-9)
}

func TestReadQstarz_DateLayouts(t *testing.T) {
	tests := []struct {
		name string
		date string
	}{
		{name: "year first", date: "2024/03/04"},
		{name: "month first", date: "03/04/2024"},
		{name: "two digit year", date: "03/04/24"},
		{name: "unpadded", date: "3/4/2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := qtravelHeader + qtravelRow(1, tt.date, "13:00:00", tt.date, "08:00:00", "40.7", "N", "74.0", "W", "0 M")
			fixes, err := ReadQstarz(strings.NewReader(data), Options{})
			require.NoError(t, err)
			require.Len(t, fixes, 1)
			assert.Equal(t, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), fixes[0].Time)
		})
	}
}

func TestReadQstarz_LegacyHeader(t *testing.T) {
	data := "INDEX,TRACK ID,VALID,UTC_DATE,UTC_TIME,LOCAL_DATE,LOCAL_TIME,MS,LATITUDE,N_S,LONGITUDE,E_W,ALTITUDE,SPEED,HEADING,G-X,G-Y,G-Z\n" +
		"1,1,SPS,2024/03/04,13:00:00,2024/03/04,08:00:00,0,40.7,N,74.0,W,55.0,3.2,180,0,0,0\n"

	fixes, err := ReadQstarz(strings.NewReader(data), Options{})
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.InDelta(t, 55.0, fixes[0].Elevation, 1e-9)
}

func TestReadQstarz_Location(t *testing.T) {
	chicago := time.FixedZone("CST", -6*3600)

	data := qtravelHeader + qtravelRow(1, "2024/03/04", "13:00:00", "2024/03/04", "08:00:00", "40.7", "N", "74.0", "W", "0 M")
	fixes, err := ReadQstarz(strings.NewReader(data), Options{Location: chicago})
	require.NoError(t, err)
	assert.Equal(t, 7, fixes[0].Local.Hour())
}

func TestReadQstarz_Rollover(t *testing.T) {
	data := qtravelHeader + qtravelRow(1, "2004/08/04", "13:00:00", "2004/08/04", "08:00:00", "40.7", "N", "74.0", "W", "0 M")

	fixes, err := ReadQstarz(strings.NewReader(data), Options{FirstYear: 2024, LastYear: 2025})
	require.NoError(t, err)
	require.Len(t, fixes, 1)

	expected := time.Date(2004, 8, 4, 13, 0, 0, 0, time.UTC).Add(gpsEpoch)
	assert.Equal(t, expected, fixes[0].Time)
	assert.Equal(t, 2024, fixes[0].Time.Year())
	assert.Equal(t, 8, fixes[0].Local.Hour())

	_, err = ReadQstarz(strings.NewReader(data), Options{FirstYear: 2024, LastYear: 2023})
	assert.True(t, trajectory.IsInputFault(err))
}

func TestReadQstarz_Errors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		input bool
	}{
		{
			name: "missing column",
			data: "INDEX,UTC DATE,UTC TIME,LATITUDE\n1,2024/03/04,13:00:00,40.7\n",
		},
		{
			name:  "bad timestamp",
			data:  qtravelHeader + qtravelRow(1, "2024-03-04", "13:00:00", "2024-03-04", "08:00:00", "40.7", "N", "74.0", "W", "0 M"),
			input: true,
		},
		{
			name: "bad hemisphere",
			data: qtravelHeader + qtravelRow(1, "2024/03/04", "13:00:00", "2024/03/04", "08:00:00", "40.7", "X", "74.0", "W", "0 M"),
		},
		{
			name: "bad height",
			data: qtravelHeader + qtravelRow(1, "2024/03/04", "13:00:00", "2024/03/04", "08:00:00", "40.7", "N", "74.0", "W", "high"),
		},
		{
			name: "empty",
			data: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadQstarz(strings.NewReader(tt.data), Options{})
			require.Error(t, err)
			assert.Equal(t, tt.input, trajectory.IsInputFault(err))
		})
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "P0042.csv")
	data := qtravelHeader + qtravelRow(1, "2024/03/04", "13:00:00", "2024/03/04", "08:00:00", "40.7", "N", "74.0", "W", "0 M")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	fixes, err := ReadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, fixes, 1)
	assert.Equal(t, "P0042", IndividualID(path))

	_, err = ReadFile(context.Background(), filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}
