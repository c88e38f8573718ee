// Package webhook provides an HTTP destination that sends records as JSON.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/clients"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	jsonpool "github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "webhook"

// Delivery modes.
const (
	ModeBatch  = "batch"
	ModeRecord = "record"
)

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewWebhookDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "HTTP destination posting records as a JSON array or one request per record",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "rate_limiting", "oauth2"},
		Parameters:   []string{"method", "mode", "headers.*", "rate_limit", "token_url", "client_id", "client_secret", "scopes"},
	})
}

// WebhookDestination sends each write as one JSON array request, or one
// request per record in record mode.
type WebhookDestination struct{}

// NewWebhookDestination creates a webhook destination.
func NewWebhookDestination() *WebhookDestination {
	return &WebhookDestination{}
}

// Write implements core.DestinationWriter.
func (d *WebhookDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		url := strings.TrimSpace(cfg.ConnectionString)
		if url == "" {
			return errors.New("endpoint url is required")
		}
		method := strings.ToUpper(cfg.Param("method", http.MethodPost))
		headers := clients.HeadersFromParams(cfg.Parameters)

		c := clients.NewHTTPClient(clients.ConfigFromParams(cfg.Parameters), logger.WithContext(ctx))
		defer c.Close()

		switch mode := cfg.Param("mode", ModeBatch); mode {
		case ModeBatch:
			body, err := jsonpool.MarshalArray(records)
			if err != nil {
				return err
			}
			return c.SendRaw(ctx, method, url, body, headers)
		case ModeRecord:
			for i, r := range records {
				if err := c.SendJSON(ctx, method, url, r, headers); err != nil {
					return fmt.Errorf("record %d: %w", i, err)
				}
			}
			return nil
		default:
			return fmt.Errorf("unsupported mode %q", mode)
		}
	})
}

// ValidateSchema implements core.DestinationWriter.
func (d *WebhookDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *WebhookDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection checks that the endpoint answers.
func (d *WebhookDestination) TestConnection(ctx context.Context, connectionString string) error {
	c := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	defer c.Close()
	return c.Ping(ctx, connectionString, nil)
}
