package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const defaultBuffer = 256

type memorySub struct {
	pattern string
	handler Handler
	queue   chan Message
}

// MemoryBus delivers messages in-process. Each subscription has its own
// queue and goroutine, so a slow or failing handler never blocks the
// publisher or other subscribers. Messages published before Start are
// buffered and delivered once it runs.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    []*memorySub
	started bool
	stopped bool
	buffer  int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logrus.Entry
}

func NewMemoryBus(log *logrus.Logger) *MemoryBus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MemoryBus{
		buffer: defaultBuffer,
		log:    log.WithField("component", "memory_bus"),
	}
}

func (b *MemoryBus) Subscribe(pattern string, h Handler) error {
	if h == nil {
		return fmt.Errorf("eventbus: nil handler for %s", pattern)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return fmt.Errorf("eventbus: bus stopped")
	}
	s := &memorySub{pattern: pattern, handler: h, queue: make(chan Message, b.buffer)}
	b.subs = append(b.subs, s)
	if b.started {
		b.run(s)
	}
	return nil
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, payload any) error {
	data, err := Encode(payload)
	if err != nil {
		return err
	}
	msg := Message{Channel: channel, Payload: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return fmt.Errorf("eventbus: publish on stopped bus")
	}
	for _, s := range b.subs {
		if !Matches(s.pattern, channel) {
			continue
		}
		select {
		case s.queue <- msg:
		case <-ctx.Done():
			return fmt.Errorf("eventbus: publish to %s: %w", channel, ctx.Err())
		}
	}
	return nil
}

func (b *MemoryBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrStarted
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	for _, s := range b.subs {
		b.run(s)
	}
	b.log.WithField("subscriptions", len(b.subs)).Info("Memory bus started")
	return nil
}

// Stop closes every subscription queue and waits until queued messages are
// handled.
func (b *MemoryBus) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	for _, s := range b.subs {
		close(s.queue)
	}
	started := b.started
	b.mu.Unlock()

	if started {
		b.wg.Wait()
		b.cancel()
	}
	b.log.Info("Memory bus stopped")
	return nil
}

// run must be called with b.mu held.
func (b *MemoryBus) run(s *memorySub) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range s.queue {
			b.deliver(s, msg)
		}
	}()
}

func (b *MemoryBus) deliver(s *memorySub, msg Message) {
	logCtx := b.log.WithFields(logrus.Fields{"channel": msg.Channel, "pattern": s.pattern})
	defer func() {
		if r := recover(); r != nil {
			logCtx.Errorf("Subscriber panicked: %v", r)
		}
	}()
	if err := s.handler(b.ctx, msg); err != nil {
		logCtx.WithError(err).Warn("Subscriber failed to handle message")
	}
}
