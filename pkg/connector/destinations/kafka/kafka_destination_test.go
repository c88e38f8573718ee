package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/json"
	"github.com/ajitpratap0/nebulaflow/pkg/models"
	"github.com/ajitpratap0/nebulaflow/pkg/nebulaerrors"
)

func record(id int64, name string) *models.Record {
	r := models.NewRecord(2)
	r.SetData("id", id)
	r.SetData("name", name)
	return r
}

func TestBrokers(t *testing.T) {
	brokers, err := Brokers("kafka://a:9092, b:9092,")
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers)

	_, err = Brokers(" ")
	assert.Error(t, err)
}

func TestMessagesUseKeyField(t *testing.T) {
	msgs, err := Messages("users", "id", []*models.Record{record(7, "ada")})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "users", msgs[0].Topic)
	assert.Equal(t, sarama.StringEncoder("7"), msgs[0].Key)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Value.(sarama.ByteEncoder), &body))
	assert.Equal(t, "ada", body["name"])
}

func TestWriteSendsAllRecords(t *testing.T) {
	var producer *mocks.SyncProducer
	dest := NewKafkaDestinationWithFactory(func(brokers []string, config *sarama.Config) (sarama.SyncProducer, error) {
		assert.Equal(t, []string{"localhost:9092"}, brokers)
		producer = mocks.NewSyncProducer(t, config)
		producer.ExpectSendMessageAndSucceed()
		producer.ExpectSendMessageAndSucceed()
		return producer, nil
	})

	cfg := models.DataSourceConfig{ConnectionString: "localhost:9092", Parameters: map[string]string{"topic": "users"}}
	require.NoError(t, dest.Write(context.Background(), cfg, []*models.Record{record(1, "a"), record(2, "b")}))
	require.NotNil(t, producer)
}

func TestWriteReportsProducerFailure(t *testing.T) {
	dest := NewKafkaDestinationWithFactory(func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		return producer, nil
	})

	cfg := models.DataSourceConfig{ConnectionString: "localhost:9092", Parameters: map[string]string{"topic": "users"}}
	err := dest.Write(context.Background(), cfg, []*models.Record{record(1, "a")})
	require.Error(t, err)
	assert.True(t, nebulaerrors.IsType(err, nebulaerrors.ErrorTypeConnector))
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
}

func TestWriteRequiresTopic(t *testing.T) {
	dest := NewKafkaDestinationWithFactory(func([]string, *sarama.Config) (sarama.SyncProducer, error) {
		t.Fatal("producer must not be created")
		return nil, nil
	})
	err := dest.Write(context.Background(), models.DataSourceConfig{ConnectionString: "localhost:9092"}, []*models.Record{record(1, "a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic")
}

func TestConfig(t *testing.T) {
	cfg := Config(models.DataSourceConfig{Parameters: map[string]string{
		"acks":           "1",
		"compression":    "lz4",
		"sasl_mechanism": "scram-sha-512",
	}})
	assert.Equal(t, sarama.WaitForLocal, cfg.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionLZ4, cfg.Producer.Compression)
	assert.True(t, cfg.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), cfg.Net.SASL.Mechanism)
}
