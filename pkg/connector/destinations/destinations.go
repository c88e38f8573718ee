// Package destinations links every built-in destination connector into the
// binary.
package destinations

import (
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"

	// Import all destination connectors to trigger init() registration
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/csv"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/influxdb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/json"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/kafka"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/mongodb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/objectstore"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/postgresql"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/sqldb"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/destinations/webhook"
	_ "github.com/ajitpratap0/nebulaflow/pkg/connector/memory"
)

// Available returns the registered destination tokens.
func Available() []string {
	return registry.ListDestinations()
}
