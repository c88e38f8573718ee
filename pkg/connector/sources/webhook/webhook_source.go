// Package webhook provides an HTTP source that fetches a JSON document of
// records with a GET request.
package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/ajitpratap0/nebulaflow/pkg/clients"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/logger"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "webhook"

func init() {
	_ = registry.RegisterSource(provider, func() core.SourceReader { return NewWebhookSource() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeSource),
		Description:  "HTTP GET source returning a JSON array, JSON lines or a wrapped record list",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "incremental", "rate_limiting", "oauth2"},
		Parameters:   []string{"records_path", "watermark_param", "headers.*", "rate_limit", "token_url", "client_id", "client_secret", "scopes"},
	})
}

// WebhookSource reads records from an HTTP endpoint. When the
// watermark_param parameter is set, the watermark value is also sent as that
// query parameter so the endpoint can filter; records are always filtered
// locally as well.
type WebhookSource struct{}

// NewWebhookSource creates a webhook source.
func NewWebhookSource() *WebhookSource {
	return &WebhookSource{}
}

func client(ctx context.Context, cfg models.DataSourceConfig) *clients.HTTPClient {
	return clients.NewHTTPClient(clients.ConfigFromParams(cfg.Parameters), logger.WithContext(ctx))
}

// Read implements core.SourceReader.
func (s *WebhookSource) Read(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "read", func(ctx context.Context) ([]*models.Record, error) {
		records, err := fetch(ctx, cfg, wm, 0)
		if err != nil {
			return nil, err
		}
		return base.FilterByWatermark(records, wm), nil
	})
}

// DiscoverSchema returns the fields of the first records returned.
func (s *WebhookSource) DiscoverSchema(ctx context.Context, cfg models.DataSourceConfig) ([]string, error) {
	records, err := base.ObserveRead(ctx, provider, "discover_schema", func(ctx context.Context) ([]*models.Record, error) {
		return fetch(ctx, cfg, nil, core.DefaultSampleSize)
	})
	if err != nil {
		return nil, err
	}
	return base.FieldsOf(records), nil
}

// DryRunPreview implements core.SourceReader.
func (s *WebhookSource) DryRunPreview(ctx context.Context, cfg models.DataSourceConfig, sampleSize int) ([]*models.Record, error) {
	return base.ObserveRead(ctx, provider, "preview", func(ctx context.Context) ([]*models.Record, error) {
		return fetch(ctx, cfg, nil, core.SampleSize(sampleSize))
	})
}

// TestConnection checks that the endpoint answers.
func (s *WebhookSource) TestConnection(ctx context.Context, connectionString string) error {
	c := clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get())
	defer c.Close()
	return c.Ping(ctx, connectionString, nil)
}

func fetch(ctx context.Context, cfg models.DataSourceConfig, wm *core.Watermark, limit int) ([]*models.Record, error) {
	url := strings.TrimSpace(cfg.ConnectionString)
	if url == "" {
		return nil, errors.New("endpoint url is required")
	}
	if param := cfg.Param("watermark_param", ""); param != "" && wm != nil {
		url = appendQuery(url, param, wm.Value)
	}

	c := client(ctx, cfg)
	defer c.Close()

	body, err := c.GetJSON(ctx, url, clients.HeadersFromParams(cfg.Parameters))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return models.DecodeRecords(body, cfg.Param("records_path", ""), limit)
}
