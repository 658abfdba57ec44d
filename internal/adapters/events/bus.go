// Package events carries domain events between the scoring pipeline and its
// observers over an in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/okian/festrank/pkg/logger"
)

// Topics.
const (
	TopicRanksRecomputed = "ranks.recomputed"
	TopicReviewOpened    = "reviews.opened"
	TopicReviewDecided   = "reviews.decided"
)

const defaultBuffer = 256

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("event bus closed")

// Handler consumes one decoded payload. Returning an error nacks the message,
// which gochannel redelivers.
type Handler func(ctx context.Context, payload []byte) error

// Bus publishes JSON payloads to topics.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates an in-process bus.
func NewBus(opts ...Option) *Bus {
	cfg := &config{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(cfg)
	}
	log := logger.Get().Named("events")
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.buffer,
			BlockPublishUntilSubscriberAck: cfg.blocking,
		}, newLogAdapter(log)),
		log: log,
	}
}

// Publish marshals payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe runs h for every message on topic until ctx is done or the bus
// closes.
func (b *Bus) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range messages {
			if err := h(msg.Context(), msg.Payload); err != nil {
				b.log.Warn(ctx, "event handler failed",
					logger.String("topic", topic),
					logger.String("message_id", msg.UUID),
					logger.Error(err),
				)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close stops every subscription and waits for handlers to return.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.wg.Wait()
	if err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	return nil
}

// Decode is a helper for handlers.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode event: %w", err)
	}
	return v, nil
}
