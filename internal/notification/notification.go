package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Notifier delivers one operational alert over a single channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, title, message string) error
}

// Manager fans alerts out to the configured channels. Delivery is
// best-effort: a failing channel is logged and counted but never blocks the
// engine.
type Manager struct {
	notifiers []Notifier
	metrics   *metrics.PrometheusMetrics
	logger    *logrus.Entry

	mu    sync.Mutex
	stats Stats
}

// Stats holds alert delivery counters.
type Stats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

// NewManager builds the alert manager from configuration. The log channel is
// always present; the webhook channel is added when a URL is configured.
func NewManager(cfg *config.AlertConfig, prom *metrics.PrometheusMetrics) *Manager {
	m := &Manager{
		metrics: prom,
		logger:  utils.Component("notification"),
	}

	if cfg == nil || !cfg.Enabled {
		return m
	}

	m.notifiers = append(m.notifiers, &LogNotifier{logger: m.logger})
	if cfg.WebhookURL != "" {
		m.notifiers = append(m.notifiers, NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout))
	}
	return m
}

// Alert delivers one alert to every channel.
func (m *Manager) Alert(ctx context.Context, title, message string) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		err := notifier.Send(ctx, title, message)

		m.mu.Lock()
		if err != nil {
			m.stats.Failed++
		} else {
			m.stats.Sent++
		}
		m.mu.Unlock()

		if m.metrics != nil {
			if err != nil {
				m.metrics.RecordNotificationFailure(notifier.Name(), "alert")
			} else {
				m.metrics.RecordNotificationSent(notifier.Name(), "alert")
			}
		}

		if err != nil {
			m.logger.WithError(err).WithField("channel", notifier.Name()).
				Warn("Alert delivery failed")
			lastErr = err
		}
	}
	return lastErr
}

// GetStats returns delivery counters.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *logrus.Entry
}

// Name identifies the channel.
func (n *LogNotifier) Name() string { return "log" }

// Send logs the alert.
func (n *LogNotifier) Send(ctx context.Context, title, message string) error {
	n.logger.WithFields(logrus.Fields{
		"title":   title,
		"message": message,
	}).Warn("Operational alert")
	return nil
}

// WebhookNotifier posts alerts as JSON to an external endpoint.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook channel.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name identifies the channel.
func (n *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Send posts the alert.
func (n *WebhookNotifier) Send(ctx context.Context, title, message string) error {
	body, err := json.Marshal(webhookPayload{
		Title:     title,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to encode alert payload", err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build alert request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "Alert webhook request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return utils.NewAppError(utils.ErrCodeConnection, "Alert webhook returned non-2xx status", resp.Status)
	}
	return nil
}
