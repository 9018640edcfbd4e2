package kafka

import (
	"context"
	"log/slog"
	"sort"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/radar-merge-service/internal/config"
	"github.com/couchcryptid/radar-merge-service/internal/domain"
)

// Writer publishes product events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured product topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return &Writer{writer: newProducer(cfg.KafkaBrokers, cfg.KafkaSinkTopic), logger: logger}
}

// LoadBatch publishes the product events in a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.OutputEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msgs[i] = toMessage(events[i])
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("product events published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// Submitter publishes archive jobs onto the job topic the pipeline consumes.
type Submitter struct {
	writer *kafkago.Writer
}

// NewSubmitter creates a producer for the configured job topic.
func NewSubmitter(cfg *config.Config) *Submitter {
	return &Submitter{writer: newProducer(cfg.KafkaBrokers, cfg.KafkaSourceTopic)}
}

// Submit writes one job message keyed by job id.
func (s *Submitter) Submit(ctx context.Context, key, value []byte) error {
	return s.writer.WriteMessages(ctx, kafkago.Message{Key: key, Value: value})
}

func (s *Submitter) Close() error {
	return s.writer.Close()
}

func newProducer(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// toMessage converts an output event into a Kafka message. Headers are
// emitted in key order so messages are reproducible.
func toMessage(event domain.OutputEvent) kafkago.Message {
	keys := make([]string, 0, len(event.Headers))
	for k := range event.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(event.Headers[k])})
	}
	return kafkago.Message{
		Key:     event.Key,
		Value:   event.Value,
		Headers: headers,
	}
}
