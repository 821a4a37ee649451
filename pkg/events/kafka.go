// Copyright 2026 Credshare Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/internaltools/credshare/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/xdg-go/scram"
)

// KafkaPublisher publishes events to Kafka using sarama.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// newSaramaConfig maps KafkaConfig onto a producer configuration.
func newSaramaConfig(cfg KafkaConfig) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "credshare"
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	switch cfg.RequiredAcks {
	case 0:
		config.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		config.Producer.RequiredAcks = sarama.WaitForAll
	default:
		config.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Compression {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
	case "none", "":
		config.Producer.Compression = sarama.CompressionNone
	default:
		config.Producer.Compression = sarama.CompressionSnappy
	}

	if cfg.BatchSize > 0 {
		config.Producer.Flush.MaxMessages = cfg.BatchSize
	}
	if cfg.BatchTimeout > 0 {
		config.Producer.Flush.Frequency = cfg.BatchTimeout
	}
	if cfg.WriteTimeout > 0 {
		config.Producer.Timeout = cfg.WriteTimeout
		config.Net.WriteTimeout = cfg.WriteTimeout
		config.Net.ReadTimeout = cfg.WriteTimeout
	}

	if cfg.TLS {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	if cfg.SASLMechanism != "" {
		config.Net.SASL.Enable = true
		config.Net.SASL.User = cfg.SASLUsername
		config.Net.SASL.Password = cfg.SASLPassword

		switch cfg.SASLMechanism {
		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{mechanism: scram.SHA256}
			}
		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{mechanism: scram.SHA512}
			}
		default:
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	// Hash on the object key so events for one object stay on one partition.
	config.Producer.Partitioner = sarama.NewHashPartitioner
	return config
}

// NewKafkaPublisher creates a new Kafka publisher.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = "credshare-events"
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("kafka producer creation failed: %w", err)
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("compression", cfg.Compression).
		Int("required_acks", cfg.RequiredAcks).
		Msg("kafka event publisher connected")

	return newKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

func newKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Publish sends an event keyed by object key.
func (p *KafkaPublisher) Publish(ctx context.Context, eventName EventType, key string, data []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-name"), Value: []byte(eventName)},
		},
		Timestamp: time.Now(),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}

	logger.Debug().
		Str("topic", p.topic).
		Str("key", key).
		Int32("partition", partition).
		Int64("offset", offset).
		Int("size", len(data)).
		Msg("published event to kafka")
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// scramClient implements sarama.SCRAMClient.
type scramClient struct {
	mechanism    scram.HashGeneratorFcn
	conversation *scram.ClientConversation
}

func (c *scramClient) Begin(userName, password, authzID string) error {
	client, err := c.mechanism.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	c.conversation = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conversation.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conversation.Done()
}
