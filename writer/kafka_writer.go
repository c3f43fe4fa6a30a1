package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	"tradesim/config"
	"tradesim/logger"
	"tradesim/models"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes each new result as JSON, keyed by symbol so one
// symbol's results stay ordered on a single partition.
type KafkaWriter struct {
	writer MessageWriter
	topic  string
	log    *logger.Log
}

func NewKafkaWriter(cfg config.KafkaConfig) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	log := logger.GetLogger()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.WithComponent("kafka_writer").WithFields(logger.Fields{
					"messages": len(msgs),
				}).WithError(err).Warn("failed to deliver results")
			}
		},
	}
	log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka writer initialized")
	return newKafkaWriter(w, cfg.Topic), nil
}

func newKafkaWriter(w MessageWriter, topic string) *KafkaWriter {
	return &KafkaWriter{writer: w, topic: topic, log: logger.GetLogger()}
}

func (kw *KafkaWriter) Name() string { return "kafka" }

func (kw *KafkaWriter) Write(ctx context.Context, res models.ResultSnapshot) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(res.Symbol),
		Value: data,
		Time:  res.UpdatedAt,
	}
	if err := kw.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", kw.topic, err)
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"symbol":    res.Symbol,
		"processed": res.Processed,
	}).Debug("result written to kafka")
	return nil
}

func (kw *KafkaWriter) Close() error {
	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	return kw.writer.Close()
}
