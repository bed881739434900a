// Package providers delivers rendered notifications over concrete channels.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
)

// ErrUnknownChannel is returned when no sender is registered for a channel.
var ErrUnknownChannel = errors.New("no sender registered for channel")

// Sender delivers one rendered request over its channel. Errors marked with
// permanent.Mark are not retried.
type Sender interface {
	Channel() models.ChannelType
	Send(ctx context.Context, req models.NotificationRequest) error
}

// Registry maps channels to senders. It is filled at startup and read-only afterwards.
type Registry struct {
	senders map[models.ChannelType]Sender
}

func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[models.ChannelType]Sender, len(senders))}
	for _, s := range senders {
		r.senders[s.Channel()] = s
	}
	return r
}

// Resolve returns the sender for channel or a permanent ErrUnknownChannel.
func (r *Registry) Resolve(channel models.ChannelType) (Sender, error) {
	if s, ok := r.senders[channel]; ok {
		return s, nil
	}
	return nil, permanent.Mark(fmt.Errorf("%w: %q", ErrUnknownChannel, channel))
}

// Channels lists the registered channels in a stable order.
func (r *Registry) Channels() []models.ChannelType {
	out := make([]models.ChannelType, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SenderFunc adapts a function to Sender.
type SenderFunc struct {
	Type models.ChannelType
	Fn   func(ctx context.Context, req models.NotificationRequest) error
}

func (f SenderFunc) Channel() models.ChannelType { return f.Type }

func (f SenderFunc) Send(ctx context.Context, req models.NotificationRequest) error {
	return f.Fn(ctx, req)
}

// runBlocking runs a call that has no context support and abandons it when ctx ends.
func runBlocking(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
