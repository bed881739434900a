package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"monitoring-service/internal/stream"
)

type Config struct {
	Brokers []string
	GroupID string
}

// Source reads one topic as part of a consumer group. Offsets are committed
// explicitly, never on read.
type Source struct {
	topic  string
	reader *kafkago.Reader
}

func NewSource(cfg Config, topic string) (*Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka source: at least one broker is required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka source: group id is required")
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	return &Source{topic: topic, reader: reader}, nil
}

func (s *Source) Fetch(ctx context.Context) (stream.Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return stream.Message{}, err
	}
	return fromKafka(m), nil
}

func (s *Source) Commit(ctx context.Context, msg stream.Message) error {
	m, ok := msg.Raw.(kafkago.Message)
	if !ok {
		return fmt.Errorf("commit %s: message was not fetched from kafka", s.topic)
	}
	if err := s.reader.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit %s[%d]@%d: %w", s.topic, m.Partition, m.Offset, err)
	}
	return nil
}

func (s *Source) Close() error {
	return s.reader.Close()
}

func fromKafka(m kafkago.Message) stream.Message {
	return stream.Message{
		Topic:     m.Topic,
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
		Raw:       m,
	}
}
