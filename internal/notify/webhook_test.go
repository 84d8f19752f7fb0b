package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/logger"
)

func TestWebhookNotifier_DeliversEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var ev Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Timeout: 2000}, logger.NewTestLogger(t))

	n.StepCompleted(Event{
		Step:          2,
		FormData:      map[string]interface{}{"phoneNumber": "50502180"},
		Result:        "token validado",
		Success:       true,
		Authorization: "auth-uuid-1",
	})

	select {
	case ev := <-received:
		assert.Equal(t, 2, ev.Step)
		assert.True(t, ev.Success)
		assert.Equal(t, "auth-uuid-1", ev.Authorization)
		assert.Equal(t, "50502180", ev.FormData["phoneNumber"])
		assert.NotEmpty(t, ev.Timestamp, "timestamp is filled in when absent")
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestWebhookNotifier_EmptyURLDisablesDelivery(t *testing.T) {
	n := NewWebhookNotifier(config.WebhookConfig{URL: "", Timeout: 1000}, logger.NewTestLogger(t))

	// Must return immediately and never panic.
	n.StepCompleted(Event{Step: 1, Success: false})
}

func TestWebhookNotifier_SinkFailureDoesNotPropagate(t *testing.T) {
	done := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		done <- struct{}{}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Timeout: 2000}, logger.NewNoOpLogger())

	// StepCompleted has no error return at all; the failure only shows up in
	// logs and metrics.
	n.StepCompleted(Event{Step: 4})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never reached")
	}
}

func TestWebhookNotifier_UnreachableSink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n := NewWebhookNotifier(config.WebhookConfig{URL: srv.URL, Timeout: 500}, logger.NewNoOpLogger())
	n.StepCompleted(Event{Step: 1})

	// Give the goroutine time to fail quietly.
	time.Sleep(100 * time.Millisecond)
}
