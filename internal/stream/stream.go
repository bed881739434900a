// Package stream consumes topics from a message bus with bounded concurrency
// and commits each message only after its handler succeeds.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode marks a payload that can never be handled. Such messages are
// logged and committed without retry.
var ErrDecode = errors.New("decode message")

// Message is one record fetched from a topic.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
	Time      time.Time
	// Raw is the driver's native message, used by Commit.
	Raw any
}

// Source delivers messages of a single topic. Fetch blocks until a message
// arrives or ctx is done.
type Source interface {
	Fetch(ctx context.Context) (Message, error)
	Commit(ctx context.Context, msg Message) error
	Close() error
}

// Publisher writes a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Route binds a topic's source to its decoder and handler.
type Route struct {
	Topic  string
	Source Source
	Decode func(Message) (any, error)
	Handle func(ctx context.Context, msg Message, payload any) error
}

type validator interface {
	Validate() error
}

// JSON builds a route whose payload is decoded into T. When T has a
// Validate method, a validation failure is treated as a decode failure.
func JSON[T any](topic string, src Source, handle func(ctx context.Context, msg Message, payload T) error) Route {
	return Route{
		Topic:  topic,
		Source: src,
		Decode: func(msg Message) (any, error) {
			var payload T
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDecode, err)
			}
			if v, ok := any(payload).(validator); ok {
				if err := v.Validate(); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrDecode, err)
				}
			}
			return payload, nil
		},
		Handle: func(ctx context.Context, msg Message, payload any) error {
			return handle(ctx, msg, payload.(T))
		},
	}
}
