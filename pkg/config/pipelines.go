package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

// PipelineFile is the on-disk layout of a pipeline definitions file.
//
//	pipelines:
//	  - id: orders-sync
//	    name: Orders sync
//	    source:
//	      type: postgresql
//	      connection_string: ${ORDERS_DSN}
//	      parameters:
//	        table: orders
//	    destination:
//	      type: json
//	      connection_string: /data/orders.jsonl
//	    schedule_enabled: true
//	    cron_expression: "*/15 * * * *"
type PipelineFile struct {
	Pipelines []*models.Pipeline `yaml:"pipelines" json:"pipelines"`
}

// LoadPipelines reads pipeline definitions from a YAML file with ${VAR}
// substitution. Missing ids are generated and missing timestamps set to now.
// Every pipeline is validated and ids must be unique.
func LoadPipelines(filePath string) ([]*models.Pipeline, error) {
	var file PipelineFile
	if err := LoadYAML(filePath, &file); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(file.Pipelines))
	for i, p := range file.Pipelines {
		if p == nil {
			return nil, fmt.Errorf("pipeline %d is empty", i)
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = p.CreatedAt
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pipeline %d: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate pipeline id %q", p.ID)
		}
		seen[p.ID] = true
	}

	return file.Pipelines, nil
}
