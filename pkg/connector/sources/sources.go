// Package sources links every built-in source connector into the binary.
package sources

import (
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"

	// Import all source connectors to trigger init() registration
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/memory"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/csv"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/influxdb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/json"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/mongodb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/postgresql"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/sqldb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/sources/webhook"
)

// Available returns the registered source tokens.
func Available() []string {
	return registry.ListSources()
}
