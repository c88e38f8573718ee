package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. NEBULAFLOW_ENGINE_POLL_INTERVAL.
const EnvPrefix = "NEBULAFLOW"

// Load reads the engine configuration. Defaults come from DefaultConfig, then
// the YAML file at filePath (optional), then NEBULAFLOW_* environment
// variables. The result is validated.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filePath != "" {
		v.SetConfigFile(filePath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.poll_interval", d.Engine.PollInterval)
	v.SetDefault("engine.reaper_interval", d.Engine.ReaperInterval)
	v.SetDefault("engine.failed_run_retention_days", d.Engine.FailedRunRetentionDays)
	v.SetDefault("engine.default_sample_size", d.Engine.DefaultSampleSize)
	v.SetDefault("engine.shutdown_timeout", d.Engine.ShutdownTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.pipelines_file", d.Store.PipelinesFile)
	v.SetDefault("store.auto_migrate", d.Store.AutoMigrate)

	v.SetDefault("lock.driver", d.Lock.Driver)
	v.SetDefault("lock.redis_url", d.Lock.RedisURL)
	v.SetDefault("lock.ttl", d.Lock.TTL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("logging.output_paths", d.Logging.OutputPaths)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
	v.SetDefault("notifications.on_failure", d.Notifications.OnFailure)
	v.SetDefault("notifications.on_success", d.Notifications.OnSuccess)
	v.SetDefault("notifications.webhook_url", d.Notifications.WebhookURL)
}

// LoadYAML loads a YAML file into out after ${VAR} substitution.
func LoadYAML(filePath string, out interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// SaveYAML writes v to a YAML file
func SaveYAML(filePath string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
