package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oferElz/Nappi/internal/models"
)

func TestGenerateQuickInsight_Success(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"insight": "Baby slept a solid stretch; the room stayed cool and quiet."}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())
	require.NotNil(t, client)

	awakenedAt := time.Date(2025, 3, 10, 6, 45, 0, 0, time.UTC)
	readings := map[models.SensorKind]float64{models.SensorTemperature: 21.0}

	insight, err := client.GenerateQuickInsight(context.Background(), 7, awakenedAt, 65.0, readings)

	require.NoError(t, err)
	assert.Equal(t, "Baby slept a solid stretch; the room stayed cool and quiet.", insight)
	assert.Equal(t, float64(7), gotBody["baby_id"])
	assert.Equal(t, 65.0, gotBody["sleep_duration_minutes"])
	assert.Contains(t, gotBody, "last_readings")
}

func TestGenerateQuickInsight_EmptyURLDisablesClient(t *testing.T) {
	client := NewClient("", time.Second, zap.NewNop())
	assert.Nil(t, client)
}

func TestGenerateQuickInsight_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())

	_, err := client.GenerateQuickInsight(context.Background(), 7, time.Now(), 30.0, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGenerateQuickInsight_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel the request context; otherwise this
		// handler blocks forever and server.Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, 20*time.Millisecond, zap.NewNop())

	_, err := client.GenerateQuickInsight(context.Background(), 7, time.Now(), 30.0, nil)

	require.Error(t, err)
}

func TestGenerateQuickInsight_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, zap.NewNop())

	_, err := client.GenerateQuickInsight(context.Background(), 7, time.Now(), 30.0, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed insight response")
}
