// Package eventbus is the publish/subscribe seam between the game services
// and whatever carries their events (in-process, redis pub/sub, a task queue).
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
)

// Well-known channels.
const (
	TurnChannel  = "/turn"
	GamesChannel = "/games"
	// GameChannelPattern matches every per-game channel.
	GameChannelPattern = "/game/*"
)

// GameChannel is the realtime channel of a single game.
func GameChannel(gameID uint) string {
	return fmt.Sprintf("/game/%d", gameID)
}

var (
	// ErrStarted is returned by buses that only accept subscriptions before Start.
	ErrStarted = errors.New("eventbus: bus already started")
	// ErrMalformed marks a message that can never be handled. Queue backed
	// buses do not retry it.
	ErrMalformed = errors.New("eventbus: malformed message")
)

// Message is what subscribers receive. Payload is JSON.
type Message struct {
	Channel string
	Payload []byte
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w on %s: %v", ErrMalformed, m.Channel, err)
	}
	return nil
}

// Handler processes one message. Delivery is at-least-once, so handlers must
// tolerate duplicates.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

type Subscriber interface {
	// Subscribe registers h for channels matching pattern (path.Match syntax,
	// e.g. "/game/*").
	Subscribe(pattern string, h Handler) error
}

// Bus is a Publisher and Subscriber with an explicit lifecycle.
type Bus interface {
	Publisher
	Subscriber
	Start(ctx context.Context) error
	Stop() error
}

// Encode turns a payload into the bytes that travel on the bus. Byte slices
// and json.RawMessage pass through untouched.
func Encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("eventbus: encode payload: %w", err)
	}
	return b, nil
}

// Matches reports whether channel matches the subscription pattern.
func Matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := path.Match(pattern, channel)
	return err == nil && ok
}
