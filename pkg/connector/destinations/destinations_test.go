package destinations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltInDestinationsRegistered(t *testing.T) {
	assert.Subset(t, Available(), []string{
		"csv", "gcs", "influxdb", "json", "kafka", "memory", "mongodb", "mysql", "postgresql", "s3", "sqlite", "webhook",
	})
}
