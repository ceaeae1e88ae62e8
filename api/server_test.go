package api

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tello-renewal/core/balance"
	"tello-renewal/core/renewal"
	"tello-renewal/internal/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", "1.2.3", nil, nil)

	rec := get(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestStatusBeforeFirstRun(t *testing.T) {
	next := time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC)
	s := NewServer(":0", "dev", func(time.Time) time.Time { return next }, nil)

	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Nil(t, status.LastRun)
	require.NotNil(t, status.NextRun)
	assert.True(t, next.Equal(*status.NextRun))
}

func TestStatusReportsLastRun(t *testing.T) {
	s := NewServer(":0", "dev", nil, nil)

	acct, err := balance.ParseAccount("11.5 GB", "Unlimited minutes", "Unlimited texts")
	require.NoError(t, err)
	s.Record(renewal.Result{RunID: "first", Outcome: renewal.OutcomeSkipped})
	s.Record(renewal.Result{
		RunID:            "second",
		Outcome:          renewal.OutcomeRenewed,
		DaysUntilRenewal: 1,
		NewBalance:       &acct,
	})

	rec := get(t, s, "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		LastRun map[string]interface{} `json:"last_run"`
		NextRun *string                `json:"next_run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "second", body.LastRun["run_id"])
	assert.Equal(t, "renewed", body.LastRun["outcome"])
	assert.Equal(t, "11.5 GB, Unlimited minutes, Unlimited texts", body.LastRun["new_balance"])
	assert.Nil(t, body.NextRun)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RunsTotal.WithLabelValues(string(renewal.OutcomeSkipped)).Inc()
	s := NewServer(":0", "dev", nil, nil)

	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tello_renewal_runs_total")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := NewServer(":0", "dev", nil, nil)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/renew").Code)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", strings.NewReader("{}")))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(ln.Addr().String(), "dev", nil, nil)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
}
