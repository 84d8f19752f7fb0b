// Package notify delivers step-outcome events to an external webhook sink.
// Delivery is fire-and-forget: the wizard flow never waits on it and never
// fails because of it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"advance-wizard/internal/common/config"
	"advance-wizard/internal/common/logger"
	"advance-wizard/internal/common/metrics"
)

// Event is the payload posted to the sink after every step attempt.
type Event struct {
	Step          int                    `json:"step"`
	FormData      map[string]interface{} `json:"formData"`
	Result        string                 `json:"result"`
	Success       bool                   `json:"success"`
	Authorization string                 `json:"autorizacion"`
	Timestamp     string                 `json:"timestamp"`
}

// Notifier publishes step outcomes. Implementations must not block the caller
// beyond handing off the event.
type Notifier interface {
	StepCompleted(ev Event)
}

// WebhookNotifier posts events as JSON to a configured URL. Failures are
// logged and counted, never surfaced to the flow.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	log        logger.Logger
}

func NewWebhookNotifier(cfg config.WebhookConfig, log logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		log: log.WithFields(map[string]interface{}{"component": "webhook"}),
	}
}

// StepCompleted delivers the event in a goroutine. An empty URL disables
// delivery entirely.
func (n *WebhookNotifier) StepCompleted(ev Event) {
	if n.url == "" {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	go n.deliver(ev)
}

func (n *WebhookNotifier) deliver(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		n.log.WithError(err).Error("failed to encode webhook event", nil)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.httpClient.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.WithError(err).Error("failed to build webhook request", nil)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.log.WithError(err).Warn("webhook delivery failed", map[string]interface{}{
			"step": ev.Step,
		})
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.log.Warn("webhook sink rejected event", map[string]interface{}{
			"step":   ev.Step,
			"status": resp.StatusCode,
		})
		metrics.WebhookDeliveries.WithLabelValues("rejected").Inc()
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("delivered").Inc()
	n.log.Debug("webhook event delivered", map[string]interface{}{
		"step":    ev.Step,
		"success": ev.Success,
	})
}

// NoOpNotifier discards events. Used in tests and when no sink is configured.
type NoOpNotifier struct{}

func (NoOpNotifier) StepCompleted(Event) {}
