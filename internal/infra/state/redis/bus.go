package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/eventbus"
)

// RedisBus carries bus channels over redis pub/sub so every instance sees
// the same realtime traffic. Delivery is at-most-once.
type RedisBus struct {
	client    *redis.Client
	keyPrefix string
	log       *logrus.Entry

	mu      sync.Mutex
	subs    []redisSub
	started bool
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type redisSub struct {
	pattern string
	handler eventbus.Handler
}

var _ eventbus.Bus = (*RedisBus)(nil)

func NewRedisBus(client *redis.Client, keyPrefix string, logger *logrus.Logger) *RedisBus {
	if client == nil {
		panic("redis client cannot be nil for RedisBus")
	}
	return &RedisBus{
		client:    client,
		keyPrefix: normalizePrefix(keyPrefix) + "bus:",
		log:       logger.WithField("component", "redis_bus"),
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := eventbus.Encode(payload)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.keyPrefix+channel, data).Err(); err != nil {
		b.log.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(data),
		}).WithError(err).Error("Redis publish failed")
		return fmt.Errorf("redis: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe must be called before Start.
func (b *RedisBus) Subscribe(pattern string, h eventbus.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return eventbus.ErrStarted
	}
	b.subs = append(b.subs, redisSub{pattern: pattern, handler: h})
	return nil
}

func (b *RedisBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return eventbus.ErrStarted
	}
	b.started = true
	if len(b.subs) == 0 {
		return nil
	}

	patterns := make([]string, 0, len(b.subs))
	for _, s := range b.subs {
		patterns = append(patterns, b.keyPrefix+s.pattern)
	}
	pubsub := b.client.PSubscribe(ctx, patterns...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis: psubscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.pubsub = pubsub
	b.cancel = cancel
	b.wg.Add(1)
	go b.loop(runCtx, pubsub.Channel())
	b.log.WithField("patterns", patterns).Info("Redis bus started")
	return nil
}

func (b *RedisBus) loop(ctx context.Context, ch <-chan *redis.Message) {
	defer b.wg.Done()
	for msg := range ch {
		channel := strings.TrimPrefix(msg.Channel, b.keyPrefix)
		m := eventbus.Message{Channel: channel, Payload: []byte(msg.Payload)}
		for _, s := range b.subs {
			if eventbus.Matches(s.pattern, channel) {
				b.deliver(ctx, s, m)
			}
		}
	}
}

func (b *RedisBus) deliver(ctx context.Context, s redisSub, m eventbus.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("channel", m.Channel).Errorf("Bus handler panicked: %v", r)
		}
	}()
	if err := s.handler(ctx, m); err != nil {
		b.log.WithError(err).WithField("channel", m.Channel).Warn("Bus handler failed")
	}
}

func (b *RedisBus) Stop() error {
	b.mu.Lock()
	pubsub, cancel := b.pubsub, b.cancel
	b.pubsub, b.cancel = nil, nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	cancel()
	err := pubsub.Close()
	b.wg.Wait()
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis: close pubsub: %w", err)
	}
	return nil
}
