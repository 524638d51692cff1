package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/config"
)

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var received webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, 5*time.Second)
	err := notifier.Send(context.Background(), "Event source switched", "buy watcher switched from indexer to ledger")
	require.NoError(t, err)
	assert.Equal(t, "Event source switched", received.Title)
	assert.False(t, received.Timestamp.IsZero())
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL, 5*time.Second)
	assert.Error(t, notifier.Send(context.Background(), "t", "m"))
}

func TestManagerCountsDeliveries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager(&config.AlertConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Timeout:    5 * time.Second,
	}, nil)

	require.NoError(t, m.Alert(context.Background(), "Raffle decided", "winner selected"))

	// Log channel plus webhook channel.
	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Equal(t, uint64(0), stats.Failed)
}

func TestDisabledManagerIsNoOp(t *testing.T) {
	m := NewManager(&config.AlertConfig{Enabled: false}, nil)
	require.NoError(t, m.Alert(context.Background(), "t", "m"))
	assert.Equal(t, uint64(0), m.GetStats().Sent)
}
