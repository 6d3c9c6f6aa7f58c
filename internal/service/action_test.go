package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/engine/rotation"
	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/service"
)

func submit(f *fixture, gameID, userID uint, payload engine.Action) (*service.GameView, error) {
	return f.svc.ProcessAction(context.Background(), service.ActionRequest{
		GameID:  gameID,
		UserID:  userID,
		Payload: payload,
		BaseURL: "https://turns.example",
	})
}

func pass(id int, entity string) engine.Action {
	return engine.Action{"id": id, "type": rotation.TypePass, "entity": entity}
}

func TestProcessAction_TurnFlipsAndStaleIDIsRejected(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	view, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	require.NoError(t, err)
	assert.Equal(t, []uint{bob.ID}, view.Acting)
	assert.Equal(t, domain.StatusActive, view.Status)

	turns := f.bus.on(eventbus.TurnChannel)
	require.Len(t, turns, 1)
	assert.Equal(t, service.TurnEvent{
		UserIDs: []uint{bob.ID},
		GameID:  gameID,
		GameURL: service.GameURL("https://turns.example", gameID),
		Type:    service.KindYourTurn,
	}, turns[0])

	_, err = submit(f, gameID, bob.ID, pass(1, "Bob"))
	assert.ErrorIs(t, err, service.ErrOutOfSync)
	assert.Equal(t, "Game out of sync", service.Reason(err))

	rows, _ := f.actions.ListByGame(context.Background(), gameID)
	assert.Len(t, rows, 1)
}

func TestProcessAction_BroadcastsGameAndAction(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	_, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	require.NoError(t, err)

	perGame := f.bus.on(eventbus.GameChannel(gameID))
	require.Len(t, perGame, 1)
	ev := perGame[0].(service.GameEvent)
	assert.Equal(t, rotation.TypePass, ev.Action.Type())
	assert.Equal(t, []uint{bob.ID}, ev.Game.Acting)
	assert.Len(t, f.bus.on(eventbus.GamesChannel), 1)
}

func TestProcessAction_IDsStayGapless(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	names := map[uint]string{alice.ID: "Alice", bob.ID: "Bob"}
	order := []uint{alice.ID, bob.ID}
	for i := 1; i <= 6; i++ {
		uid := order[(i-1)%2]
		_, err := submit(f, gameID, uid, pass(i, names[uid]))
		require.NoError(t, err)
		// A repeated or skipped id never gets in.
		_, err = submit(f, gameID, uid, pass(i, names[uid]))
		require.ErrorIs(t, err, service.ErrOutOfSync)
		_, err = submit(f, gameID, uid, pass(i+2, names[uid]))
		require.ErrorIs(t, err, service.ErrOutOfSync)
	}

	rows, _ := f.actions.ListByGame(context.Background(), gameID)
	require.Len(t, rows, 6)
	for i, r := range rows {
		assert.Equal(t, i+1, r.ActionID)
	}
}

func TestProcessAction_ConcurrentSameIDOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = submit(f, gameID, bob.ID, engine.Action{"id": 1, "type": engine.TypeMessage, "message": "hi"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, service.ErrOutOfSync)
	}
	assert.Equal(t, 1, succeeded)
	count, _ := f.actions.CountByGame(context.Background(), gameID)
	assert.Equal(t, int64(1), count)
}

func TestProcessAction_ReplayReproducesState(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("Carol")
	gameID := f.startedGame(t, false, alice, bob, carol)

	steps := []struct {
		user    uint
		payload engine.Action
	}{
		{alice.ID, engine.Action{"type": rotation.TypeMove, "entity": "Alice", "points": 3}},
		{bob.ID, engine.Action{"type": rotation.TypePass, "entity": "Bob"}},
		{carol.ID, engine.Action{"type": engine.TypeMessage, "message": "gg"}},
		{carol.ID, engine.Action{"type": rotation.TypeMove, "entity": "Carol", "points": 1}},
		{alice.ID, engine.Action{"type": rotation.TypeMove, "entity": "Alice", "points": 2}},
	}
	for i, s := range steps {
		s.payload["id"] = i + 1
		_, err := submit(f, gameID, s.user, s.payload)
		require.NoError(t, err, "step %d", i+1)
	}

	game, err := f.store.FindByID(context.Background(), gameID)
	require.NoError(t, err)
	rows, _ := f.actions.ListByGame(context.Background(), gameID)
	history := make([]engine.Action, len(rows))
	for i, r := range rows {
		history[i] = engine.Action(r.Payload)
	}

	replayed, err := f.engines.Load(game.Title, game.PlayerNames(), history)
	require.NoError(t, err)
	assert.Equal(t, game.Round, replayed.Round())
	assert.Equal(t, game.Turn, replayed.Turn())
	assert.Equal(t, game.ActingIDs(), game.ActingFromNames(replayed.ActivePlayers()))
	assert.Equal(t, 2, game.Turn)
	assert.Equal(t, []uint{bob.ID}, game.ActingIDs())
}

func TestProcessAction_EndGameFinishes(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	_, err := submit(f, gameID, alice.ID, engine.Action{"id": 1, "type": rotation.TypeMove, "entity": "Alice", "points": 4})
	require.NoError(t, err)
	view, err := submit(f, gameID, bob.ID, engine.Action{"id": 2, "type": rotation.TypeEndGame, "entity": "Bob"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFinished, view.Status)
	assert.Equal(t, rotation.RoundGameOver, view.Round)
	assert.Empty(t, view.Acting)
	assert.EqualValues(t, 4, view.Result["Alice"])
	// Nobody is acting any more, so there is no one to tell.
	assert.Len(t, f.bus.on(eventbus.TurnChannel), 1)
}

func TestProcessAction_Rejections(t *testing.T) {
	f := newFixture(t)
	alice, bob, eve := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("Eve")
	gameID := f.startedGame(t, false, alice, bob)

	_, err := submit(f, gameID, eve.ID, pass(1, "Eve"))
	assert.ErrorIs(t, err, service.ErrAuthorizationDenied)

	_, err = submit(f, 9999, alice.ID, pass(1, "Alice"))
	assert.ErrorIs(t, err, service.ErrGameNotFound)

	_, err = submit(f, gameID, bob.ID, pass(1, "Bob"))
	assert.ErrorIs(t, err, service.ErrRuleViolation)

	_, err = submit(f, gameID, alice.ID, engine.Action{"type": rotation.TypePass, "entity": "Alice"})
	assert.ErrorIs(t, err, service.ErrOutOfSync, "missing id")

	count, _ := f.actions.CountByGame(context.Background(), gameID)
	assert.Zero(t, count)
	assert.Empty(t, f.bus.on(eventbus.TurnChannel))
}

func TestProcessAction_PersistenceFailureLeavesNothing(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	f.store.failUpdate = errors.New("disk full")
	_, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	assert.ErrorIs(t, err, service.ErrInternalServer)

	count, _ := f.actions.CountByGame(context.Background(), gameID)
	assert.Zero(t, count)
	game, _ := f.store.FindByID(context.Background(), gameID)
	assert.Equal(t, []uint{alice.ID}, game.ActingIDs())
	assert.Empty(t, f.bus.msgs)
}

func TestProcessAction_UniqueCollisionIsOutOfSync(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, false, alice, bob)

	f.store.duplicateNext = true
	_, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	assert.ErrorIs(t, err, service.ErrOutOfSync)
}

func TestProcessAction_MentionsNotifyNamedPlayers(t *testing.T) {
	f := newFixture(t)
	alice, bob, bobby := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("bob")
	gameID := f.startedGame(t, false, alice, bob, bobby)

	_, err := submit(f, gameID, alice.ID, engine.Action{"id": 1, "type": engine.TypeMessage, "message": "your move @Bob"})
	require.NoError(t, err)

	turns := f.bus.on(eventbus.TurnChannel)
	require.Len(t, turns, 1)
	ev := turns[0].(service.TurnEvent)
	assert.Equal(t, service.KindReceivedMessage, ev.Type)
	assert.Equal(t, []uint{bob.ID}, ev.UserIDs)

	_, err = submit(f, gameID, alice.ID, engine.Action{"id": 2, "type": engine.TypeMessage, "message": "no mentions here"})
	require.NoError(t, err)
	assert.Len(t, f.bus.on(eventbus.TurnChannel), 1)
}

func pinned(id int, meta map[string]any) engine.Action {
	return engine.Action{"id": id, "type": "buy_train", "entity": "PRR", "meta": meta}
}

func TestProcessAction_PinMode(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, true, alice, bob)

	view, err := submit(f, gameID, alice.ID, pinned(1, map[string]any{
		"round":          "Operating Round",
		"turn":           float64(3),
		"active_players": []any{"Bob"},
		"game_result":    map[string]any{},
		"game_status":    "active",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Operating Round", view.Round)
	assert.Equal(t, 3, view.Turn)
	assert.Equal(t, []uint{bob.ID}, view.Acting)

	rows, _ := f.actions.ListByGame(context.Background(), gameID)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0].Payload, "meta")
	assert.Equal(t, "buy_train", rows[0].Payload["type"])
	assert.Equal(t, "Operating Round", rows[0].Round)
	assert.Equal(t, 3, rows[0].Turn)

	view, err = submit(f, gameID, bob.ID, pinned(2, map[string]any{
		"round":          "Game Over",
		"turn":           float64(3),
		"active_players": []any{},
		"game_result":    map[string]any{"Alice": float64(10), "Bob": float64(7)},
		"game_status":    "finished",
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinished, view.Status)
	assert.EqualValues(t, 10, view.Result["Alice"])
	assert.Len(t, f.bus.on(eventbus.TurnChannel), 1, "empty acting set publishes no turn event")
}

func TestProcessAction_PinModeRejections(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	gameID := f.startedGame(t, true, alice, bob)

	_, err := submit(f, gameID, alice.ID, engine.Action{"id": 1, "type": "pass"})
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "Game missing metadata", service.Reason(err))

	_, err = submit(f, gameID, alice.ID, pinned(2, map[string]any{"round": "x"}))
	assert.ErrorIs(t, err, service.ErrOutOfSync)

	_, err = submit(f, gameID, alice.ID, pinned(1, map[string]any{"game_status": "new"}))
	assert.ErrorIs(t, err, service.ErrValidation, "status cannot move backwards")

	_, err = submit(f, gameID, alice.ID, pinned(1, map[string]any{"game_status": "paused"}))
	assert.ErrorIs(t, err, service.ErrValidation)

	count, _ := f.actions.CountByGame(context.Background(), gameID)
	assert.Zero(t, count)
}
