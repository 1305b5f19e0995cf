package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GenSpectrum/evobench-sub000/internal/observability"
)

func TestTracingHandlerAddsServiceAttribute(t *testing.T) {
	var buf bytes.Buffer

	base := slog.NewJSONHandler(&buf, nil)
	handler := observability.NewTracingHandler(base, "evobench-run")
	logger := slog.New(handler)

	logger.Info("hello")

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "evobench-run", decoded["service"])
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	logger := observability.NewLogger(slog.LevelWarn, "json", "evobench-run")
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("bogus"))
}

func TestTracerProviderShutdown(t *testing.T) {
	tp, shutdown, err := observability.NewTracerProvider("evobench-run-test")
	require.NoError(t, err)
	require.NotNil(t, tp)

	err = shutdown(context.Background())
	assert.NoError(t, err)
}

func TestMetricsHandlerServesQueueDepth(t *testing.T) {
	m := observability.NewMetrics()
	m.QueueDepth.WithLabelValues("staging").Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "evobench_run_queue_depth")
	assert.True(t, strings.Contains(rec.Body.String(), `queue="staging"`))
}
