package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gridhaven/haven/internal/config"
	"github.com/gridhaven/haven/internal/logging"
	"github.com/gridhaven/haven/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Event is the webhook payload for a finished sync or download
type Event struct {
	ContentType string    `json:"content_type,omitempty"`
	PackageName string    `json:"package_name,omitempty"`
	Success     bool      `json:"success"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message,omitempty"`
}

// Notifier delivers events to a webhook. Delivery is best-effort: a failed
// POST is logged and dropped, never retried, and never blocks the sync path.
type Notifier struct {
	enabled    bool
	webhookURL string
	limiter    *rate.Limiter
	client     *http.Client
	logger     *logging.SafeLogger
}

// New creates a notifier from config. A disabled config yields a notifier
// whose Send is a cheap no-op.
func New(cfg config.NotificationConfig) *Notifier {
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}

	return &Notifier{
		enabled:    cfg.Enabled,
		webhookURL: cfg.WebhookURL,
		limiter:    rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logging.Logger,
	}
}

// Enabled reports whether notifications are configured on
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// Send posts an event in the background. Rate-limited events are dropped
// with a log line rather than queued.
func (n *Notifier) Send(event Event) {
	if !n.enabled {
		return
	}

	if !n.limiter.Allow() {
		n.logger.Warn("notification dropped by rate limit",
			zap.String("content_type", event.ContentType))
		observability.NotificationsSent.WithLabelValues("rate_limited").Inc()
		return
	}

	go n.post(event)
}

// post performs the actual webhook delivery, single attempt
func (n *Notifier) post(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal notification", zap.Error(err))
		observability.NotificationsSent.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("failed to build notification request", zap.Error(err))
		observability.NotificationsSent.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("webhook_url", n.webhookURL),
			zap.Error(err))
		observability.NotificationsSent.WithLabelValues("failed").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("notification rejected by webhook",
			zap.Int("status", resp.StatusCode))
		observability.NotificationsSent.WithLabelValues("failed").Inc()
		return
	}

	n.logger.Debug("notification delivered",
		zap.String("content_type", event.ContentType),
		zap.Bool("success", event.Success))
	observability.NotificationsSent.WithLabelValues("delivered").Inc()
}

// SyncEvent builds an Event for a finished content sync
func SyncEvent(contentType string, success bool, duration time.Duration) Event {
	return Event{
		ContentType: contentType,
		Success:     success,
		DurationMs:  duration.Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}
}

// FailureEvent builds an Event for a failed scheduled task
func FailureEvent(taskName string, err error) Event {
	return Event{
		ContentType: taskName,
		Success:     false,
		Timestamp:   time.Now().UTC(),
		Message:     fmt.Sprintf("scheduled task failed: %v", err),
	}
}
