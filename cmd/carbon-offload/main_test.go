package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carbon-offload/internal/gateway"
	"github.com/rshade/carbon-offload/internal/pricing"
)

func setTestEnv(t *testing.T, driver string) {
	t.Helper()
	t.Setenv("STORE_DRIVER", driver)
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "carbon.db"))
	t.Setenv("PORT", "0")
	t.Setenv("HEALTH_PORT", "0")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ENABLE_CLOUD_INTEGRATION", "false")
	t.Setenv("AUTH_TOKENS", "tok-alice:alice")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSeedAndListRegions(t *testing.T) {
	setTestEnv(t, "sqlite")

	out, err := execute(t, "regions")
	require.NoError(t, err)
	assert.Contains(t, out, "No available regions")

	out, err = execute(t, "seed")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.EqualValues(t, 12, res["count"])
	assert.EqualValues(t, 10, res["awsRegions"])

	out, err = execute(t, "regions", "--provider", "aws")
	require.NoError(t, err)
	assert.Contains(t, out, "aws:eu-north-1")
	assert.NotContains(t, out, "gcp:")
	assert.Less(t, bytes.Index([]byte(out), []byte("aws:eu-north-1")),
		bytes.Index([]byte(out), []byte("aws:ap-south-1")))
}

func TestSeedMissingFile(t *testing.T) {
	setTestEnv(t, "memory")

	_, err := execute(t, "seed", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	setTestEnv(t, "postgres")

	_, err := execute(t, "regions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestBuildHandler(t *testing.T) {
	setTestEnv(t, "memory")

	a, err := newApp(&rootOptions{})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.ensureCatalog(ctx))

	handler, err := buildHandler(ctx, a, prometheus.NewRegistry())
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "health", path: "/health", want: http.StatusOK},
		{name: "metrics", path: "/metrics", want: http.StatusOK},
		{name: "regions", path: "/api/cloud/regions", token: "tok-alice", want: http.StatusOK},
		{name: "regions without token", path: "/api/cloud/regions", want: http.StatusUnauthorized},
		{name: "connection test while disabled", path: "/api/cloud/test-connection/aws", token: "tok-alice", want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	setTestEnv(t, "memory")

	a, err := newApp(&rootOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, serve(ctx, a))
}

func TestCheckRateTables(t *testing.T) {
	prices, err := pricing.NewClient(zerolog.Nop())
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	assert.Empty(t, checkRateTables(logger, prices, gateway.SupportedInstanceTypes()))
	assert.Contains(t, logs.String(), `"pricing_version":"20240115"`)

	logs.Reset()
	missing := checkRateTables(logger, prices, []string{"t2.micro", "m5.large"})
	assert.Equal(t, []string{"m5.large"}, missing)
	assert.Contains(t, logs.String(), "falls back to the default tier")
}
