// Package notify delivers pipeline outcome notifications.
//
// The orchestrator always calls a Dispatcher at terminal states; whether a
// message is actually sent is decided by GatedDispatcher from the externally
// owned notification settings.
package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/nebulaflow/internal/store"
	"github.com/ajitpratap0/nebulaflow/pkg/clients"
	"github.com/ajitpratap0/nebulaflow/pkg/metrics"
)

const (
	EventFailure = "failure"
	EventSuccess = "success"
)

// FailureNotification describes a failed run.
type FailureNotification struct {
	PipelineID   string    `json:"pipeline_id"`
	PipelineName string    `json:"pipeline_name"`
	ErrorMessage string    `json:"error_message"`
	Stage        string    `json:"stage,omitempty"`
	TriggeredBy  string    `json:"triggered_by"`
	Timestamp    time.Time `json:"timestamp"`
}

// SuccessNotification describes a successful run.
type SuccessNotification struct {
	PipelineID    string    `json:"pipeline_id"`
	PipelineName  string    `json:"pipeline_name"`
	RowsProcessed int64     `json:"rows_processed"`
	TriggeredBy   string    `json:"triggered_by"`
	Timestamp     time.Time `json:"timestamp"`
}

// Dispatcher sends outcome notifications.
type Dispatcher interface {
	SendFailure(ctx context.Context, n FailureNotification) error
	SendSuccess(ctx context.Context, n SuccessNotification) error
}

// Nop drops every notification.
type Nop struct{}

func (Nop) SendFailure(context.Context, FailureNotification) error { return nil }
func (Nop) SendSuccess(context.Context, SuccessNotification) error { return nil }

// GatedDispatcher forwards to next only when the current settings enable the
// event. Settings are read on every call so changes apply without a restart.
type GatedDispatcher struct {
	next     Dispatcher
	settings store.SettingsStore
	logger   *zap.Logger
}

// NewGatedDispatcher wraps next with the settings gate.
func NewGatedDispatcher(next Dispatcher, settings store.SettingsStore, logger *zap.Logger) *GatedDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatedDispatcher{next: next, settings: settings, logger: logger.With(zap.String("component", "notify"))}
}

func (d *GatedDispatcher) SendFailure(ctx context.Context, n FailureNotification) error {
	if !d.enabled(ctx, EventFailure) {
		return nil
	}
	err := d.next.SendFailure(ctx, n)
	metrics.NotificationsTotal.WithLabelValues(EventFailure, metrics.Status(err)).Inc()
	return err
}

func (d *GatedDispatcher) SendSuccess(ctx context.Context, n SuccessNotification) error {
	if !d.enabled(ctx, EventSuccess) {
		return nil
	}
	err := d.next.SendSuccess(ctx, n)
	metrics.NotificationsTotal.WithLabelValues(EventSuccess, metrics.Status(err)).Inc()
	return err
}

// enabled reports whether event is switched on. Unreadable settings fall
// back to store.DefaultSettings.
func (d *GatedDispatcher) enabled(ctx context.Context, event string) bool {
	s, err := d.settings.Settings(ctx)
	if err != nil {
		d.logger.Warn("failed to load settings, using defaults", zap.String("event", event), zap.Error(err))
		s = store.DefaultSettings()
	}
	on := s.Notifications.Enabled
	switch event {
	case EventFailure:
		on = on && s.Notifications.OnFailure
	case EventSuccess:
		on = on && s.Notifications.OnSuccess
	}
	if !on {
		metrics.NotificationsTotal.WithLabelValues(event, "suppressed").Inc()
		d.logger.Debug("notification suppressed by settings", zap.String("event", event))
	}
	return on
}

// LogDispatcher writes notifications to the log.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger.With(zap.String("component", "notify"))}
}

func (d *LogDispatcher) SendFailure(_ context.Context, n FailureNotification) error {
	d.logger.Warn("pipeline run failed",
		zap.String("pipeline_id", n.PipelineID),
		zap.String("pipeline_name", n.PipelineName),
		zap.String("stage", n.Stage),
		zap.String("triggered_by", n.TriggeredBy),
		zap.String("error", n.ErrorMessage),
		zap.Time("timestamp", n.Timestamp))
	return nil
}

func (d *LogDispatcher) SendSuccess(_ context.Context, n SuccessNotification) error {
	d.logger.Info("pipeline run succeeded",
		zap.String("pipeline_id", n.PipelineID),
		zap.String("pipeline_name", n.PipelineName),
		zap.Int64("rows_processed", n.RowsProcessed),
		zap.String("triggered_by", n.TriggeredBy),
		zap.Time("timestamp", n.Timestamp))
	return nil
}

// webhookEnvelope is the JSON body posted by WebhookDispatcher.
type webhookEnvelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// WebhookDispatcher posts notifications as JSON.
type WebhookDispatcher struct {
	url     string
	headers map[string]string
	client  *clients.HTTPClient
}

// NewWebhookDispatcher creates a dispatcher posting to url. A nil client gets
// the default HTTP configuration.
func NewWebhookDispatcher(url string, headers map[string]string, client *clients.HTTPClient) (*WebhookDispatcher, error) {
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if client == nil {
		client = clients.NewHTTPClient(clients.DefaultHTTPConfig(), nil)
	}
	return &WebhookDispatcher{url: url, headers: headers, client: client}, nil
}

func (d *WebhookDispatcher) SendFailure(ctx context.Context, n FailureNotification) error {
	return d.client.SendJSON(ctx, http.MethodPost, d.url, webhookEnvelope{Event: EventFailure, Payload: n}, d.headers)
}

func (d *WebhookDispatcher) SendSuccess(ctx context.Context, n SuccessNotification) error {
	return d.client.SendJSON(ctx, http.MethodPost, d.url, webhookEnvelope{Event: EventSuccess, Payload: n}, d.headers)
}

// Close releases the HTTP client.
func (d *WebhookDispatcher) Close() error {
	return d.client.Close()
}
