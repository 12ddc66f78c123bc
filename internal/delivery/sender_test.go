package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/identity"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/utils"
)

var sentAt = time.Date(2024, 5, 1, 12, 0, 10, 0, time.UTC)

func testRecord() models.MergedRecord {
	return models.MergedRecord{
		models.HeartRate: {
			Metric:     models.HeartRate,
			Value:      72,
			ObservedAt: time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC),
		},
		models.BloodOxygen: {
			Metric:     models.BloodOxygen,
			Value:      97,
			ObservedAt: time.Date(2024, 5, 1, 11, 50, 0, 0, time.UTC),
		},
	}
}

func TestBuildPayload_WireFormat(t *testing.T) {
	id := models.Identity{ShortUserID: "1234567890", DriverID: "ABC"}

	data, err := json.Marshal(BuildPayload(testRecord(), id, sentAt))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "1234567890", body["uid"])
	assert.Equal(t, "ABC", body["did"])
	assert.Equal(t, "2024-05-01T12:00:10Z", body["ts"])
	assert.Equal(t, "apple_watch", body["dt"])

	hd := body["hd"].(map[string]interface{})
	assert.Equal(t, []interface{}{72.0, "2024-05-01T12:00:05Z"}, hd["hr"])
	assert.Equal(t, []interface{}{97.0, "2024-05-01T11:50:00Z"}, hd["bo"])
	assert.Len(t, hd, 2)
}

func TestSender_PostsHealth(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/prod/health", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"))

		data, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(data, &body))
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	id := models.Identity{ShortUserID: models.DefaultShortUserID, DriverID: identity.NewDriverID()}
	sender := NewSender(server.Client(), server.URL+"/prod", 4, utils.NewFixedClock(sentAt), true, zap.NewNop())

	require.True(t, sender.Send(context.Background(), testRecord(), id))
	sender.Wait()

	body := <-received
	did, ok := body["did"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(did)
	assert.NoError(t, err)
	assert.Equal(t, strings.ToUpper(did), did)

	last, ok := sender.LastDelivered()
	require.True(t, ok)
	assert.Equal(t, id.DriverID, last.DID)
	assert.Equal(t, Stats{Delivered: 1}, sender.Stats())
}

func TestSender_ServerErrorIsCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sender := NewSender(server.Client(), server.URL, 4, utils.SystemClock{}, false, zap.NewNop())
	require.True(t, sender.Send(context.Background(), testRecord(), models.Identity{ShortUserID: "1"}))
	sender.Wait()

	_, ok := sender.LastDelivered()
	assert.False(t, ok)
	assert.Equal(t, Stats{Failed: 1}, sender.Stats())
}

func TestSender_UnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	sender := NewSender(http.DefaultClient, url, 4, utils.SystemClock{}, false, zap.NewNop())
	require.True(t, sender.Send(context.Background(), testRecord(), models.Identity{ShortUserID: "1"}))
	sender.Wait()

	assert.Equal(t, int64(1), sender.Stats().Failed)
}

func TestSender_DropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(server.Client(), server.URL, 1, utils.SystemClock{}, false, zap.NewNop())
	id := models.Identity{ShortUserID: "1", DriverID: "D"}

	require.True(t, sender.Send(context.Background(), testRecord(), id))
	assert.False(t, sender.Send(context.Background(), testRecord(), id))

	close(release)
	sender.Wait()

	assert.Equal(t, Stats{Delivered: 1, Dropped: 1}, sender.Stats())

	// Slot is free again
	require.True(t, sender.Send(context.Background(), testRecord(), id))
	sender.Wait()
}

func TestSender_SurvivesCallerCancellation(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-done
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sender := NewSender(server.Client(), server.URL, 2, utils.SystemClock{}, false, zap.NewNop())
	require.True(t, sender.Send(ctx, testRecord(), models.Identity{ShortUserID: "1"}))
	cancel()
	close(done)
	sender.Wait()

	assert.Equal(t, int64(1), sender.Stats().Delivered)
}
