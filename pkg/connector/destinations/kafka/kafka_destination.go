// Package kafka provides a Kafka topic destination backed by a sarama sync
// producer.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/ajitpratap0/nebulaflow/pkg/connector/base"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/core"
	"github.com/ajitpratap0/nebulaflow/pkg/connector/registry"
	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
)

const provider = "kafka"

func init() {
	_ = registry.RegisterDestination(provider, func() core.DestinationWriter { return NewKafkaDestination() })

	_ = registry.RegisterConnectorInfo(&registry.ConnectorInfo{
		Name:         provider,
		Type:         string(core.ConnectorTypeDestination),
		Description:  "Kafka destination publishing one JSON message per record",
		Version:      "1.0.0",
		Capabilities: []string{"batch", "streaming"},
		Parameters:   []string{"topic", "key_field", "acks", "compression", "sasl_mechanism", "sasl_username", "sasl_password", "tls"},
	})
}

// ProducerFactory opens a producer for the brokers.
type ProducerFactory func(brokers []string, config *sarama.Config) (sarama.SyncProducer, error)

// KafkaDestination publishes records to a topic. The connection string is a
// comma separated broker list.
type KafkaDestination struct {
	newProducer ProducerFactory
}

// NewKafkaDestination creates a Kafka destination.
func NewKafkaDestination() *KafkaDestination {
	return &KafkaDestination{newProducer: sarama.NewSyncProducer}
}

// NewKafkaDestinationWithFactory creates a destination that obtains its
// producer from factory.
func NewKafkaDestinationWithFactory(factory ProducerFactory) *KafkaDestination {
	return &KafkaDestination{newProducer: factory}
}

// Brokers splits a connection string into broker addresses.
func Brokers(connectionString string) ([]string, error) {
	var brokers []string
	for _, b := range strings.Split(connectionString, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, strings.TrimPrefix(b, "kafka://"))
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	return brokers, nil
}

// Config builds the producer configuration from connector parameters.
func Config(cfg models.DataSourceConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "nebulaflow"
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 10 * time.Second

	switch cfg.Param("acks", "all") {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	switch cfg.Param("compression", "") {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
		config.Version = sarama.V2_1_0_0
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if cfg.Param("tls", "") == "true" {
		config.Net.TLS.Enable = true
	}
	if mech := cfg.Param("sasl_mechanism", ""); mech != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.Param("sasl_username", "")
		config.Net.SASL.Password = cfg.Param("sasl_password", "")
		switch strings.ToUpper(mech) {
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}
	return config
}

// Messages encodes records as producer messages for topic. When keyField is
// set its value becomes the message key.
func Messages(topic, keyField string, records []*models.Record) ([]*sarama.ProducerMessage, error) {
	messages := make([]*sarama.ProducerMessage, 0, len(records))
	for i, r := range records {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i, err)
		}
		msg := &sarama.ProducerMessage{
			Topic: topic,
			Value: sarama.ByteEncoder(value),
			Headers: []sarama.RecordHeader{
				{Key: []byte("content-type"), Value: []byte("application/json")},
			},
		}
		if keyField != "" {
			if k, ok := r.GetData(keyField); ok && k != nil {
				msg.Key = sarama.StringEncoder(models.ValueString(k))
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Write implements core.DestinationWriter.
func (d *KafkaDestination) Write(ctx context.Context, cfg models.DataSourceConfig, records []*models.Record) error {
	return base.Observe(ctx, provider, "write", func(ctx context.Context) error {
		if len(records) == 0 {
			return nil
		}
		topic := strings.TrimSpace(cfg.Param("topic", ""))
		if topic == "" {
			return errors.New("topic parameter is required")
		}
		brokers, err := Brokers(cfg.ConnectionString)
		if err != nil {
			return err
		}
		messages, err := Messages(topic, cfg.Param("key_field", ""), records)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		producer, err := d.newProducer(brokers, Config(cfg))
		if err != nil {
			return err
		}
		defer producer.Close()

		if err := producer.SendMessages(messages); err != nil {
			var perrs sarama.ProducerErrors
			if errors.As(err, &perrs) && len(perrs) > 0 {
				return fmt.Errorf("%d of %d messages failed: %w", len(perrs), len(messages), perrs[0].Err)
			}
			return err
		}
		return nil
	})
}

// ValidateSchema implements core.DestinationWriter.
func (d *KafkaDestination) ValidateSchema(_ context.Context, cfg models.DataSourceConfig, fields []string) (bool, error) {
	return base.ValidateAgainstSchema(cfg, fields), nil
}

// DryRunPreview implements core.DestinationWriter.
func (d *KafkaDestination) DryRunPreview(_ context.Context, _ models.DataSourceConfig, records []*models.Record, sampleSize int) ([]*models.Record, error) {
	return base.EchoPreview(records, sampleSize), nil
}

// TestConnection connects to the brokers and fetches cluster metadata.
func (d *KafkaDestination) TestConnection(_ context.Context, connectionString string) error {
	brokers, err := Brokers(connectionString)
	if err != nil {
		return err
	}
	client, err := sarama.NewClient(brokers, Config(models.DataSourceConfig{}))
	if err != nil {
		return err
	}
	return client.Close()
}
