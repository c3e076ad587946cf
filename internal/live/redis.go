package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "guildquest:events:"

// Channel is the Redis pub/sub channel for a guild's events.
func Channel(guildID string) string {
	return channelPrefix + guildID
}

// RedisBus relays events through Redis pub/sub so every server instance sees them.
type RedisBus struct {
	rdb    *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
}

func NewRedisBus(rdb *redis.Client, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{rdb: rdb, logger: logger, subs: make(map[*redis.PubSub]struct{})}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrBusClosed
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(e.GuildID), payload).Err()
}

// Subscribe listens on one guild's channel, or on every guild when f.GuildID is empty.
func (b *RedisBus) Subscribe(ctx context.Context, f Filter) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	var ps *redis.PubSub
	if f.GuildID != "" {
		ps = b.rdb.Subscribe(ctx, Channel(f.GuildID))
	} else {
		ps = b.rdb.PSubscribe(ctx, channelPrefix+"*")
	}
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		b.release(ps)
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer b.release(ps)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warn("dropping malformed live event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if !f.Match(e) {
					continue
				}
				select {
				case out <- e:
				default:
					b.logger.Debug("live subscriber lagging, event dropped", zap.String("table", e.Table))
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) release(ps *redis.PubSub) {
	b.mu.Lock()
	_, ok := b.subs[ps]
	delete(b.subs, ps)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

// Close shuts every open subscription. The Redis client itself is owned by the caller.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[*redis.PubSub]struct{})
	b.mu.Unlock()
	for ps := range subs {
		_ = ps.Close()
	}
	return nil
}
