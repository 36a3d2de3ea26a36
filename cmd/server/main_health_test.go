// Package main provides tests for the health check endpoints
package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/stuartshay/trajectory-worker/internal/api"
	"github.com/stuartshay/trajectory-worker/internal/queue"
)

type idleJobs struct{}

func (idleJobs) Submit(string, time.Time, time.Time) (string, error) { return "", nil }
func (idleJobs) GetJob(string) (*queue.Job, error) { return nil, queue.ErrJobNotFound }
func (idleJobs) ListJobs(queue.JobStatus, int, int) []*queue.Job { return nil }
func (idleJobs) Stats() map[string]int { return map[string]int{} }
func (idleJobs) Ready(context.Context) error { return nil }

func TestHealthzEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := newHTTPServer("8080", api.NewRouter(idleJobs{}, "trajectory-worker"))
	assert.Equal(t, ":8080", srv.Addr)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	expected := `{"service":"trajectory-worker","status":"healthy"}`
	if rec.Body.String() != expected {
		t.Errorf("Expected body %s, got %s", expected, rec.Body.String())
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json; charset=utf-8" {
		t.Errorf("Expected Content-Type application/json, got %s", contentType)
	}
}

func TestGRPCHealth(t *testing.T) {
	grpcServer, healthServer := newGRPCServer()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = grpcServer.Serve(lis) }()
	defer grpcServer.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := grpc_health_v1.NewHealthClient(conn)
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	resp, err = client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestSetLogLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"verbose": zerolog.InfoLevel,
	}
	for level, want := range tests {
		setLogLevel(level)
		assert.Equal(t, want, zerolog.GlobalLevel(), level)
	}
}
