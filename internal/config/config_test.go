package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

var envVars = []string{
	"SERVICE_NAME", "ENVIRONMENT", "GRPC_PORT", "HTTP_PORT",
	"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB",
	"HOME_LATITUDE", "HOME_LONGITUDE", "HOME_RADIUS_M",
	"DEST_LATITUDE", "DEST_LONGITUDE", "DEST_RADIUS_M",
	"STORES_FILE", "STORE_RADIUS_M", "THRESHOLDS_FILE",
	"OUTPUT_PATH", "CSV_OUTPUT_PATH", "WORKER_COUNT", "QUEUE_SIZE",
	"MAX_ACCURACY_M", "LOCAL_TIMEZONE", "SORT_UNORDERED", "OTEL_ENABLED",
}

// clearEnv unsets every configuration key for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// nolint:gocyclo // Test function complexity from multiple subtests and assertions
func TestLoad(t *testing.T) {
	t.Run("loads default values", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}

		if cfg.ServiceName != "trajectory-worker" {
			t.Errorf("expected ServiceName 'trajectory-worker', got '%s'", cfg.ServiceName)
		}
		if cfg.GRPCPort != "50051" {
			t.Errorf("expected GRPCPort '50051', got '%s'", cfg.GRPCPort)
		}
		if cfg.PostgresPort != "6432" {
			t.Errorf("expected PostgresPort '6432' (PgBouncer), got '%s'", cfg.PostgresPort)
		}
		if cfg.HomeLatitude != 40.736097 {
			t.Errorf("expected HomeLatitude 40.736097, got %f", cfg.HomeLatitude)
		}
		if cfg.HomeLongitude != -74.039373 {
			t.Errorf("expected HomeLongitude -74.039373, got %f", cfg.HomeLongitude)
		}
		assert.Equal(t, 50.0, cfg.HomeRadiusM)
		assert.False(t, cfg.HasDest)
		assert.Equal(t, 5, cfg.WorkerCount)
		assert.Equal(t, 100, cfg.QueueSize)
		assert.Equal(t, "/data/csv", cfg.OutputPath)
		assert.True(t, cfg.SortUnordered)
		assert.True(t, cfg.OTELEnabled)
	})

	t.Run("loads custom values from environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SERVICE_NAME", "test-service")
		t.Setenv("GRPC_PORT", "9999")
		t.Setenv("POSTGRES_PORT", "5432")
		t.Setenv("HOME_LATITUDE", "42.0")
		t.Setenv("HOME_LONGITUDE", "-73.0")
		t.Setenv("DEST_LATITUDE", "42.01")
		t.Setenv("DEST_LONGITUDE", "-73.02")
		t.Setenv("WORKER_COUNT", "3")
		t.Setenv("CSV_OUTPUT_PATH", "/tmp/out")
		t.Setenv("SORT_UNORDERED", "false")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}

		if cfg.ServiceName != "test-service" {
			t.Errorf("expected ServiceName 'test-service', got '%s'", cfg.ServiceName)
		}
		if cfg.GRPCPort != "9999" {
			t.Errorf("expected GRPCPort '9999', got '%s'", cfg.GRPCPort)
		}
		if cfg.PostgresPort != "5432" {
			t.Errorf("expected PostgresPort '5432', got '%s'", cfg.PostgresPort)
		}
		if cfg.HomeLatitude != 42.0 {
			t.Errorf("expected HomeLatitude 42.0, got %f", cfg.HomeLatitude)
		}
		assert.True(t, cfg.HasDest)
		assert.Equal(t, 42.01, cfg.DestLatitude)
		assert.Equal(t, -73.02, cfg.DestLongitude)
		assert.Equal(t, 3, cfg.WorkerCount)
		assert.Equal(t, "/tmp/out", cfg.OutputPath)
		assert.False(t, cfg.SortUnordered)
	})

	t.Run("returns error for invalid values", func(t *testing.T) {
		tests := map[string]string{
			"HOME_LATITUDE":  "invalid",
			"WORKER_COUNT":   "0",
			"QUEUE_SIZE":     "many",
			"SORT_UNORDERED": "sometimes",
			"DEST_LATITUDE":  "42.0",
		}
		for key, value := range tests {
			clearEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			if err == nil {
				t.Errorf("expected error for %s=%s, got nil", key, value)
			}
		}
	})
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost:     "192.168.1.175",
		PostgresPort:     "6432",
		PostgresDB:       "owntracks",
		PostgresUser:     "testuser",
		PostgresPassword: "testpass",
	}

	expected := "host=192.168.1.175 port=6432 dbname=owntracks user=testuser password=testpass sslmode=disable"
	if dsn := cfg.DatabaseDSN(); dsn != expected {
		t.Errorf("expected DSN '%s', got '%s'", expected, dsn)
	}
}

func TestAnchors(t *testing.T) {
	dir := t.TempDir()
	stores := filepath.Join(dir, "stores.csv")
	require.NoError(t, os.WriteFile(stores, []byte("id,latitude,longitude,marker\n1,40.7,-74.0,2\n2,40.8,-74.1,3\n"), 0o600))

	cfg := &Config{
		HomeLatitude:  40.736097,
		HomeLongitude: -74.039373,
		HomeRadiusM:   10,
		HasDest:       true,
		DestLatitude:  40.75,
		DestLongitude: -74.0,
		DestRadiusM:   80,
		StoresFile:    stores,
		StoreRadiusM:  40,
	}

	anchors, err := cfg.Anchors()
	require.NoError(t, err)
	require.NotNil(t, anchors.Home)
	assert.Equal(t, 30.0, anchors.Home.Radius, "radius is raised to the floor")
	require.NotNil(t, anchors.Dest)
	assert.Equal(t, 80.0, anchors.Dest.Radius)
	require.Len(t, anchors.Stores, 2)
	assert.Equal(t, 3, anchors.Stores[1].Marker)

	cfg.HasDest = false
	cfg.StoresFile = filepath.Join(dir, "missing.csv")
	_, err = cfg.Anchors()
	assert.Error(t, err)
}

func TestLoadParams(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, p trajectory.Params)
	}{
		{
			name: "empty keeps defaults",
			yaml: "",
			check: func(t *testing.T, p trajectory.Params) {
				assert.Equal(t, trajectory.DefaultParams(), p)
			},
		},
		{
			name: "partial override",
			yaml: "trip:\n  min_pause: 120\n  max_pause: 240\nlocation:\n  min_time: 600\n",
			check: func(t *testing.T, p trajectory.Params) {
				assert.Equal(t, 120.0, p.Trip.MinPause)
				assert.Equal(t, 240.0, p.Trip.MaxPause)
				assert.Equal(t, 600.0, p.Location.MinTime)
				assert.Equal(t, 100.0, p.Trip.MinLength)
				assert.Equal(t, 130.0, p.Filter.MaxSpeed)
			},
		},
		{
			name: "speed cutoffs replace the defaults",
			yaml: "speed:\n  - mode: walk\n    mean: 8\n    max: 12\n",
			check: func(t *testing.T, p trajectory.Params) {
				require.Len(t, p.Speed, 1)
				assert.Equal(t, trajectory.ModeWalk, p.Speed[0].Mode)
				assert.Equal(t, 8.0, p.Speed[0].MeanKMH)
			},
		},
		{name: "unknown key", yaml: "trip:\n  min_pauses: 1\n", wantErr: true},
		{name: "pause bounds", yaml: "trip:\n  min_pause: 400\n", wantErr: true},
		{name: "malformed", yaml: "trip: [", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LoadParams(strings.NewReader(tt.yaml))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestLoadParamsFile(t *testing.T) {
	p, err := LoadParamsFile("")
	require.NoError(t, err)
	assert.Equal(t, trajectory.DefaultParams(), p)

	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid_fixes:\n  max_sloss: 900\n"), 0o600))

	cfg := &Config{ThresholdsFile: path}
	p, err = cfg.Params()
	require.NoError(t, err)
	assert.Equal(t, 900.0, p.Filter.MaxSignalLoss)

	_, err = LoadParamsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
