package eventbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turn-coordinator/internal/eventbus"
)

func collect(t *testing.T, ch <-chan eventbus.Message, n int) []eventbus.Message {
	t.Helper()
	var out []eventbus.Message
	for len(out) < n {
		select {
		case m := <-ch:
			out = append(out, m)
		case <-time.After(time.Second):
			t.Fatalf("received %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestMemoryBus_PatternDelivery(t *testing.T) {
	bus := eventbus.NewMemoryBus(logrus.New())
	games := make(chan eventbus.Message, 10)
	perGame := make(chan eventbus.Message, 10)

	require.NoError(t, bus.Subscribe(eventbus.GamesChannel, func(_ context.Context, m eventbus.Message) error {
		games <- m
		return nil
	}))
	require.NoError(t, bus.Subscribe(eventbus.GameChannelPattern, func(_ context.Context, m eventbus.Message) error {
		perGame <- m
		return nil
	}))
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, eventbus.GameChannel(4), map[string]int{"id": 4}))
	require.NoError(t, bus.Publish(ctx, eventbus.GamesChannel, map[string]int{"id": 4}))

	got := collect(t, perGame, 1)
	assert.Equal(t, "/game/4", got[0].Channel)
	var decoded map[string]int
	require.NoError(t, got[0].Decode(&decoded))
	assert.Equal(t, 4, decoded["id"])

	got = collect(t, games, 1)
	assert.Equal(t, eventbus.GamesChannel, got[0].Channel)

	select {
	case m := <-perGame:
		t.Fatalf("unexpected message on %s", m.Channel)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryBus_FailingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := eventbus.NewMemoryBus(logrus.New())
	seen := make(chan eventbus.Message, 10)
	calls := 0
	require.NoError(t, bus.Subscribe(eventbus.TurnChannel, func(_ context.Context, m eventbus.Message) error {
		calls++
		seen <- m
		if calls == 1 {
			return errors.New("smtp down")
		}
		if calls == 2 {
			panic("bad handler")
		}
		return nil
	}))
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), eventbus.TurnChannel, []byte(`{}`)))
	}
	collect(t, seen, 3)
	require.NoError(t, bus.Stop())
}

func TestMemoryBus_BuffersUntilStartAndDrainsOnStop(t *testing.T) {
	bus := eventbus.NewMemoryBus(logrus.New())
	seen := make(chan eventbus.Message, 10)
	require.NoError(t, bus.Subscribe(eventbus.GamesChannel, func(_ context.Context, m eventbus.Message) error {
		seen <- m
		return nil
	}))
	require.NoError(t, bus.Publish(context.Background(), eventbus.GamesChannel, []byte(`{"n":1}`)))
	require.NoError(t, bus.Start(context.Background()))
	assert.ErrorIs(t, bus.Start(context.Background()), eventbus.ErrStarted)
	require.NoError(t, bus.Stop())

	assert.Len(t, seen, 1)
	assert.Error(t, bus.Publish(context.Background(), eventbus.GamesChannel, []byte(`{}`)))
}

func TestMatches(t *testing.T) {
	assert.True(t, eventbus.Matches("/game/*", "/game/12"))
	assert.False(t, eventbus.Matches("/game/*", "/games"))
	assert.True(t, eventbus.Matches("/turn", "/turn"))
}
