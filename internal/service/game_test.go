package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine/rotation"
	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/service"
)

func TestGameService_CreateAutoJoinsOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.store.addUser("Alice")

	view, err := f.games.Create(context.Background(), alice.ID, service.CreateGameInput{
		Title: rotation.Title, Description: "friday", MaxPlayers: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, view.Status)
	assert.Equal(t, rotation.RoundPlay, view.Round)
	assert.Equal(t, []service.UserView{{ID: alice.ID, Name: "Alice"}}, view.Players)
	assert.Equal(t, service.UserView{ID: alice.ID, Name: "Alice"}, view.User)
	assert.Empty(t, view.Acting)
	assert.False(t, view.Settings.Pin)

	assert.Len(t, f.bus.on(eventbus.GamesChannel), 1)
	assert.Len(t, f.bus.on(eventbus.GameChannel(view.ID)), 1)
}

func TestGameService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.store.addUser("Alice")
	ctx := context.Background()

	_, err := f.games.Create(ctx, alice.ID, service.CreateGameInput{Title: "Chess", MaxPlayers: 2})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.games.Create(ctx, alice.ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 1})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.games.Create(ctx, 0, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 2})
	assert.ErrorIs(t, err, service.ErrAuthenticationRequired)
}

func TestGameService_JoinUntilFull(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("Carol")
	ctx := context.Background()
	game, err := f.games.Create(ctx, alice.ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 2})
	require.NoError(t, err)

	view, err := f.games.Join(ctx, game.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, view.Players, 2)

	_, err = f.games.Join(ctx, game.ID, bob.ID)
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.games.Join(ctx, game.ID, carol.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "Cannot join game because it is full", service.Reason(err))

	got, err := f.games.Get(ctx, game.ID, false)
	require.NoError(t, err)
	assert.Len(t, got.Players, 2)
}

func TestGameService_StartNeedsTwoPlayersAndOwner(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	ctx := context.Background()
	game, err := f.games.Create(ctx, alice.ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 3})
	require.NoError(t, err)

	_, err = f.games.Start(ctx, game.ID, alice.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "Cannot play 1 player", service.Reason(err))

	_, err = f.games.Join(ctx, game.ID, bob.ID)
	require.NoError(t, err)

	_, err = f.games.Start(ctx, game.ID, bob.ID)
	assert.ErrorIs(t, err, service.ErrAuthorizationDenied)

	view, err := f.games.Start(ctx, game.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, view.Status)
	assert.Equal(t, []uint{alice.ID}, view.Acting)

	_, err = f.games.Start(ctx, game.ID, alice.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestGameService_JoinOnlyChecksCapacity(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol, dave := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("Carol"), f.store.addUser("Dave")
	ctx := context.Background()
	game, err := f.games.Create(ctx, alice.ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 3})
	require.NoError(t, err)
	_, err = f.games.Join(ctx, game.ID, bob.ID)
	require.NoError(t, err)
	_, err = f.games.Start(ctx, game.ID, alice.ID)
	require.NoError(t, err)

	view, err := f.games.Join(ctx, game.ID, carol.ID)
	require.NoError(t, err, "started games stay open while there is room")
	assert.Equal(t, domain.StatusActive, view.Status)
	assert.Len(t, view.Players, 3)
	assert.Equal(t, []uint{alice.ID}, view.Acting)

	_, err = f.games.Join(ctx, game.ID, dave.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "Cannot join game because it is full", service.Reason(err))

	_, err = f.games.Join(ctx, game.ID, carol.ID)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "Already joined this game", service.Reason(err))
}

func TestGameService_LeaveAndKick(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol, eve := f.store.addUser("Alice"), f.store.addUser("Bob"), f.store.addUser("Carol"), f.store.addUser("Eve")
	ctx := context.Background()
	gameID := f.startedGame(t, false, alice, bob, carol)

	_, err := f.games.Leave(ctx, gameID, eve.ID)
	assert.ErrorIs(t, err, service.ErrAuthorizationDenied)

	_, err = f.games.Kick(ctx, gameID, bob.ID, carol.ID)
	assert.ErrorIs(t, err, service.ErrAuthorizationDenied)

	_, err = f.games.Kick(ctx, gameID, alice.ID, eve.ID)
	assert.ErrorIs(t, err, service.ErrValidation)

	view, err := f.games.Kick(ctx, gameID, alice.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, []service.UserView{{ID: alice.ID, Name: "Alice"}, {ID: bob.ID, Name: "Bob"}}, view.Players)

	// Alice is acting; leaving drops her from the acting set too.
	view, err = f.games.Leave(ctx, gameID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []service.UserView{{ID: bob.ID, Name: "Bob"}}, view.Players)
	assert.Empty(t, view.Acting)

	assert.Len(t, f.bus.on(eventbus.GamesChannel), 2)
}

func TestGameService_DeleteBroadcastsFinalState(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	ctx := context.Background()
	gameID := f.startedGame(t, false, alice, bob)
	_, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	require.NoError(t, err)
	f.bus.reset()

	_, err = f.games.Delete(ctx, gameID, bob.ID)
	assert.ErrorIs(t, err, service.ErrAuthorizationDenied)

	view, err := f.games.Delete(ctx, gameID, alice.ID)
	require.NoError(t, err)
	assert.True(t, view.Deleted)
	assert.Equal(t, []uint{bob.ID}, view.Acting)

	broadcast := f.bus.on(eventbus.GamesChannel)
	require.Len(t, broadcast, 1)
	assert.True(t, broadcast[0].(service.GameView).Deleted)

	_, err = f.games.Get(ctx, gameID, false)
	assert.ErrorIs(t, err, service.ErrGameNotFound)
	count, _ := f.actions.CountByGame(ctx, gameID)
	assert.Zero(t, count)
}

func TestGameService_GetWithActions(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	ctx := context.Background()
	gameID := f.startedGame(t, false, alice, bob)
	_, err := submit(f, gameID, alice.ID, pass(1, "Alice"))
	require.NoError(t, err)

	view, err := f.games.Get(ctx, gameID, true)
	require.NoError(t, err)
	require.Len(t, view.Actions, 1)
	assert.Equal(t, rotation.TypePass, view.Actions[0].Type())

	view, err = f.games.Get(ctx, gameID, false)
	require.NoError(t, err)
	assert.Nil(t, view.Actions)
}

func TestGameService_List(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.store.addUser("Alice"), f.store.addUser("Bob")
	ctx := context.Background()
	started := f.startedGame(t, false, alice, bob)
	for i := 0; i < 3; i++ {
		_, err := f.games.Create(ctx, bob.ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: 2})
		require.NoError(t, err)
	}

	all, err := f.games.List(ctx, 0, service.ListGamesInput{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, err := f.games.List(ctx, 0, service.ListGamesInput{Status: []string{"active"}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, started, active[0].ID)

	mine, err := f.games.List(ctx, alice.ID, service.ListGamesInput{Mine: true})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	page2, err := f.games.List(ctx, 0, service.ListGamesInput{Limit: 3, Page: 2})
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	_, err = f.games.List(ctx, 0, service.ListGamesInput{Mine: true})
	assert.ErrorIs(t, err, service.ErrAuthenticationRequired)

	_, err = f.games.List(ctx, 0, service.ListGamesInput{Status: []string{"paused"}})
	assert.ErrorIs(t, err, service.ErrValidation)
}
