package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatAdapter_Notify_PostsExpectedPayload(t *testing.T) {
	var received chatPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewChatAdapter(server.URL, "ci-room", "tok-123")
	err := adapter.Notify(context.Background(), "demo", "unit", true, "http://ci.example.com/build/1", "alice")
	require.NoError(t, err)

	assert.Equal(t, "ci-room", received.Room)
	assert.Equal(t, "tok-123", received.Token)
	assert.Equal(t, colorRed, received.Color)
	assert.True(t, received.Notify)
	assert.Contains(t, received.Message, "[demo] unit failed - http://ci.example.com/build/1")
	assert.Contains(t, received.Message, "/cc @alice")
}

func TestChatAdapter_Notify_RepairedIsGreenNoCc(t *testing.T) {
	var received chatPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewChatAdapter(server.URL, "ci-room", "tok-123")
	err := adapter.Notify(context.Background(), "demo", "unit", false, "http://ci.example.com/build/2", "")
	require.NoError(t, err)

	assert.Equal(t, colorGreen, received.Color)
	assert.NotContains(t, received.Message, "/cc")
}

func TestChatAdapter_Notify_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewChatAdapter(server.URL, "ci-room", "tok-123")
	err := adapter.Notify(context.Background(), "demo", "unit", true, "", "")
	assert.Error(t, err)
}
