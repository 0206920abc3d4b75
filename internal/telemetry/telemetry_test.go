package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_ExposesMetrics(t *testing.T) {
	tel, err := Init(false)
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(context.Background()) }()

	counter, err := tel.MeterProvider().Meter("test").Int64Counter("groundcheck_test_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "groundcheck_test_events_total"), string(body))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestInit_Twice(t *testing.T) {
	first, err := Init(false)
	require.NoError(t, err)
	defer func() { _ = first.Shutdown(context.Background()) }()

	second, err := Init(false)
	require.NoError(t, err)
	defer func() { _ = second.Shutdown(context.Background()) }()
}
