// Package natsstream adapts NATS JetStream to the stream Source and Publisher contracts.
package natsstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"monitoring-service/internal/stream"
)

const streamMaxAge = 7 * 24 * time.Hour

// Bus owns one NATS connection shared by every source and the publisher.
type Bus struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// Connect dials NATS and makes sure streamName captures every topic.
func Connect(url, streamName string, topics []string) (*Bus, error) {
	nc, err := nats.Connect(url, nats.Name("monitoring-service"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	if err := ensureStream(js, streamName, topics); err != nil {
		nc.Close()
		return nil, err
	}
	return &Bus{nc: nc, js: js}, nil
}

func ensureStream(js nats.JetStreamContext, name string, subjects []string) error {
	if _, err := js.StreamInfo(name); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", name, err)
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    streamMaxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", name, err)
	}
	return nil
}

// Publish implements stream.Publisher.
func (b *Bus) Publish(ctx context.Context, topic string, key, value []byte) error {
	msg := nats.NewMsg(topic)
	msg.Data = value
	if len(key) > 0 {
		msg.Header.Set("Monitoring-Key", string(key))
	}
	if _, err := b.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Source opens a durable pull consumer on topic.
func (b *Bus) Source(topic, group string, ackWait time.Duration) (*Source, error) {
	durable := durableName(group, topic)
	sub, err := b.js.PullSubscribe(topic, durable,
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.DeliverAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return &Source{topic: topic, sub: sub}, nil
}

func (b *Bus) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

// durableName derives a consumer name; NATS forbids dots and spaces in it.
func durableName(group, topic string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(group + "-" + topic)
}

// Source pulls one message at a time from a JetStream consumer.
type Source struct {
	topic string
	sub   *nats.Subscription
}

func (s *Source) Fetch(ctx context.Context) (stream.Message, error) {
	msgs, err := s.sub.Fetch(1, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return stream.Message{}, context.DeadlineExceeded
		}
		return stream.Message{}, err
	}
	if len(msgs) == 0 {
		return stream.Message{}, context.DeadlineExceeded
	}
	m := msgs[0]
	out := stream.Message{
		Topic: s.topic,
		Key:   []byte(m.Header.Get("Monitoring-Key")),
		Value: m.Data,
		Raw:   m,
	}
	if meta, err := m.Metadata(); err == nil {
		out.Offset = int64(meta.Sequence.Stream)
		out.Time = meta.Timestamp
	}
	return out, nil
}

func (s *Source) Commit(ctx context.Context, msg stream.Message) error {
	m, ok := msg.Raw.(*nats.Msg)
	if !ok {
		return fmt.Errorf("commit %s: message was not fetched from nats", s.topic)
	}
	if err := m.Ack(nats.Context(ctx)); err != nil {
		return fmt.Errorf("ack %s seq %d: %w", s.topic, msg.Offset, err)
	}
	return nil
}

func (s *Source) Close() error {
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("unsubscribe %s: %w", s.topic, err)
	}
	return nil
}
