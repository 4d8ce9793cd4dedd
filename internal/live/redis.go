package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/epiguard-backend/pkg/logger"
)

const subscriberBuffer = 16

type publisher interface {
	Publish(ctx context.Context, channel string, message any) (int64, error)
}

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

// RedisBroadcaster publishes events on a Redis channel so every API replica
// can forward them to its own SSE clients.
type RedisBroadcaster struct {
	pub     publisher
	sub     subscriber
	channel string
	logg    *logger.Logger
}

// NewRedisBroadcaster wires a broadcaster. sub may be nil for publish-only processes.
func NewRedisBroadcaster(pub publisher, sub subscriber, channel string, logg *logger.Logger) (*RedisBroadcaster, error) {
	if pub == nil {
		return nil, errors.New("redis publisher required")
	}
	if channel == "" {
		return nil, errors.New("live channel required")
	}
	return &RedisBroadcaster{pub: pub, sub: sub, channel: channel, logg: logg}, nil
}

// Publish sends the event to the configured channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := b.pub.Publish(ctx, b.channel, string(data)); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

// Subscribe streams decoded events until ctx is done. The returned channel is
// closed once the subscription ends.
func (b *RedisBroadcaster) Subscribe(ctx context.Context) (<-chan Event, error) {
	if b.sub == nil {
		return nil, errors.New("redis subscriber not configured")
	}
	ps, err := b.sub.Subscribe(ctx, b.channel)
	if err != nil {
		return nil, err
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				evt, err := decodeEvent(msg.Payload)
				if err != nil {
					if b.logg != nil {
						b.logg.Warn(ctx, "dropping malformed live event")
					}
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, err
	}
	if evt.Type == "" {
		return Event{}, errors.New("event type missing")
	}
	return evt, nil
}
