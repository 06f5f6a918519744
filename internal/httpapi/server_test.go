package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwatch/signalrun/internal/metrics"
)

type fakeSource struct{}

func (fakeSource) QueueDepth() int                  { return 3 }
func (fakeSource) QueueStats() (int64, int64)       { return 100, 7 }
func (fakeSource) BreakerStates() map[string]string { return map[string]string{"dexscreener": "closed"} }
func (fakeSource) TrackingCounts() (int, int)       { return 12, 40 }
func (fakeSource) ReputationCount() int             { return 5 }
func (fakeSource) BlacklistSize() int               { return 2 }

func TestHealthEndpoint(t *testing.T) {
	s := New(":0", fakeSource{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	s := New(":0", fakeSource{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))

	require.Equal(t, 200, rec.Code)
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.QueueDepth)
	assert.Equal(t, int64(7), body.QueueDropped)
	assert.Equal(t, "closed", body.Breakers["dexscreener"])
	assert.Equal(t, 12, body.ActiveSignals)
	assert.Equal(t, 40, body.CompletedSignals)
	assert.Equal(t, 2, body.BlacklistedTokens)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.New()
	reg.SignalsAdmitted.Inc()

	s := New(":0", fakeSource{}, reg)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "signalrun_signals_admitted_total 1")
}

func TestStatusWithoutSource(t *testing.T) {
	s := New(":0", nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	assert.Equal(t, 200, rec.Code)
}
