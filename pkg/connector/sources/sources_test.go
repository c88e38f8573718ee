package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuiltInSourcesRegistered(t *testing.T) {
	assert.Subset(t, Available(), []string{
		"csv", "influxdb", "json", "memory", "mongodb", "mysql", "postgresql", "sqlite", "webhook",
	})
}
