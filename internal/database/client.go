// Package database provides PostgreSQL client functionality for reading
// OwnTracks location data as fixes, with connection pooling and health checks.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/stuartshay/trajectory-worker/internal/trajectory"
)

// Client wraps a PostgreSQL database connection
type Client struct {
	db *sql.DB
}

// Location represents a GPS location record from the database
type Location struct {
	ID        int64
	DeviceID  string
	Latitude  float64
	Longitude float64
	Accuracy  int
	Altitude  int
	Velocity  int
	Timestamp int64
	CreatedAt time.Time
}

// Fix converts the record into a fix. The device timestamp is preferred
// over the insertion time.
func (l Location) Fix() trajectory.Fix {
	ts := l.CreatedAt.UTC()
	if l.Timestamp > 0 {
		ts = time.Unix(l.Timestamp, 0).UTC()
	}
	return trajectory.Fix{
		Time:      ts,
		Local:     ts,
		Lat:       l.Latitude,
		Lon:       l.Longitude,
		Elevation: float64(l.Altitude),
	}
}

// FixQuery selects the records of one device. Zero Start or End leave that
// side of the range open; a positive MaxAccuracy drops records reported
// less accurate than that many meters.
type FixQuery struct {
	DeviceID    string
	Start       time.Time
	End         time.Time
	MaxAccuracy int
}

// where renders the filter clause and its arguments
func (q FixQuery) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.DeviceID != "" {
		add("device_id = $%d", q.DeviceID)
	}
	if !q.Start.IsZero() {
		add("created_at >= $%d", q.Start.UTC())
	}
	if !q.End.IsZero() {
		add("created_at <= $%d", q.End.UTC())
	}
	if q.MaxAccuracy > 0 {
		add("(accuracy IS NULL OR accuracy <= $%d)", q.MaxAccuracy)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// NewClient creates a new database client with connection pooling
func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

const locationColumns = `
		SELECT
			id, device_id, latitude, longitude, accuracy, altitude, velocity,
			EXTRACT(EPOCH FROM timestamp)::bigint AS timestamp, created_at
		FROM public.locations`

// GetLocations retrieves the location records matching q in time order
func (c *Client) GetLocations(ctx context.Context, q FixQuery) ([]Location, error) {
	where, args := q.where()
	query := locationColumns + where + " ORDER BY created_at ASC, id ASC"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }() // nolint:errcheck // Close in defer, error not actionable

	var locations []Location
	for rows.Next() {
		var loc Location
		var accuracy, altitude, velocity, timestamp sql.NullInt64

		err := rows.Scan(
			&loc.ID,
			&loc.DeviceID,
			&loc.Latitude,
			&loc.Longitude,
			&accuracy,
			&altitude,
			&velocity,
			&timestamp,
			&loc.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		// Convert NULL values to zero values
		if accuracy.Valid {
			loc.Accuracy = int(accuracy.Int64)
		}
		if altitude.Valid {
			loc.Altitude = int(altitude.Int64)
		}
		if velocity.Valid {
			loc.Velocity = int(velocity.Int64)
		}
		if timestamp.Valid {
			loc.Timestamp = timestamp.Int64
		}

		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return locations, nil
}

// GetFixes retrieves the fixes matching q. Fix indices follow the record
// order.
func (c *Client) GetFixes(ctx context.Context, q FixQuery) ([]trajectory.Fix, error) {
	locations, err := c.GetLocations(ctx, q)
	if err != nil {
		return nil, err
	}
	return ToFixes(locations), nil
}

// ToFixes converts location records into indexed fixes
func ToFixes(locations []Location) []trajectory.Fix {
	fixes := make([]trajectory.Fix, len(locations))
	for i, loc := range locations {
		fixes[i] = loc.Fix()
		fixes[i].Index = i
	}
	return fixes
}

// GetDevices returns a list of unique device IDs from the database
func (c *Client) GetDevices(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT device_id
		FROM public.locations
		WHERE device_id IS NOT NULL
		ORDER BY device_id
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }() // nolint:errcheck // Close in defer, error not actionable

	var devices []string
	for rows.Next() {
		var deviceID string
		if err := rows.Scan(&deviceID); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		devices = append(devices, deviceID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return devices, nil
}

// GetFixCount returns the number of records matching q
func (c *Client) GetFixCount(ctx context.Context, q FixQuery) (int, error) {
	where, args := q.where()
	query := `SELECT COUNT(*) FROM public.locations` + where

	var count int
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}

	return count, nil
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
