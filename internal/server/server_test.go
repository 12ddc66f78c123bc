package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/delivery"
	"github.com/lkarthik76/ddnd/internal/models"
)

func testSources() Sources {
	updated := time.Date(2024, 5, 1, 15, 4, 0, 0, time.UTC)
	return Sources{
		Identity: models.Identity{ShortUserID: "1234567890", DriverID: "D-1"},
		Risk: func() models.RiskState {
			return models.RiskState{Label: "high", LastUpdatedAt: &updated, SecondsUntilNextFetch: 12}
		},
		Driving: func() models.DrivingState {
			return models.DrivingState{IsDriving: true, Source: "motion", UpdatedAt: updated}
		},
		Delivery: func() delivery.Stats { return delivery.Stats{Delivered: 3, Dropped: 1} },
		Location: time.UTC,
	}
}

func TestHealthz(t *testing.T) {
	s := New("127.0.0.1:0", Sources{}, zap.NewNop())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	s := New("127.0.0.1:0", testSources(), zap.NewNop())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "D-1", resp.Identity.DriverID)
	assert.Equal(t, "high", resp.Risk.Label)
	assert.Equal(t, "High", resp.View.Label)
	assert.Equal(t, "red", resp.View.Color)
	assert.Equal(t, "Updated: 3:04 PM", resp.View.Updated)
	assert.Equal(t, "Refreshing in 12s", resp.View.Refresh)
	assert.True(t, resp.Driving.IsDriving)
	assert.Equal(t, int64(3), resp.Delivery.Delivered)
}

func TestRecord(t *testing.T) {
	sources := testSources()
	s := New("127.0.0.1:0", sources, zap.NewNop())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/record", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	sources.Record = func() (models.HealthPayload, bool) {
		return models.HealthPayload{UID: "1234567890", DID: "D-1", DeviceType: models.DeviceType}, true
	}
	s = New("127.0.0.1:0", sources, zap.NewNop())

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/record", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "D-1", body["did"])
	assert.Equal(t, "apple_watch", body["dt"])
}

func TestRefresh(t *testing.T) {
	sources := testSources()
	s := New("127.0.0.1:0", sources, zap.NewNop())

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/risk/refresh", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	refreshed := 0
	sources.Refresh = func() { refreshed++ }
	s = New("127.0.0.1:0", sources, zap.NewNop())

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/risk/refresh", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, refreshed)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := New(addr, testSources(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
