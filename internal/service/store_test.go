package service_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/engine/rotation"
	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/repository"
	"turn-coordinator/internal/service"
)

// memStore is an in-memory GameRepository, ActionRepository and Transactor.
// Transactions are serialized and roll back every change on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users   map[uint]domain.User
	games   map[uint]domain.Game
	players []domain.GamePlayer
	actions []domain.Action
	nextID  uint

	failUpdate    error // returned by UpdateState when set
	duplicateNext bool  // next action Create reports a unique violation
}

func newMemStore() *memStore {
	return &memStore{users: map[uint]domain.User{}, games: map[uint]domain.Game{}}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(name string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.id(), Name: name, Email: name + "@example.com", NotificationsEnabled: true}
	s.users[u.ID] = u
	return u
}

type memSnapshot struct {
	games   map[uint]domain.Game
	players []domain.GamePlayer
	actions []domain.Action
}

func (s *memStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := memSnapshot{games: map[uint]domain.Game{}}
	for k, v := range s.games {
		snap.games[k] = v
	}
	snap.players = append([]domain.GamePlayer(nil), s.players...)
	snap.actions = append([]domain.Action(nil), s.actions...)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.games, s.players, s.actions = snap.games, snap.players, snap.actions
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	b, _ := json.Marshal(m)
	var out datatypes.JSONMap
	_ = json.Unmarshal(b, &out)
	return out
}

// Game side.

func (s *memStore) Create(ctx context.Context, game *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game.ID = s.id()
	g := *game
	g.Players, g.Owner = nil, domain.User{}
	s.games[g.ID] = g
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id uint) (*domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}
	return s.hydrate(g), nil
}

func (s *memStore) hydrate(g domain.Game) *domain.Game {
	g.Owner = s.users[g.UserID]
	g.Result = cloneMap(g.Result)
	g.Players = nil
	for _, p := range s.players {
		if p.GameID == g.ID {
			p.User = s.users[p.UserID]
			g.Players = append(g.Players, p)
		}
	}
	sort.Slice(g.Players, func(i, j int) bool { return g.Players[i].ID < g.Players[j].ID })
	return &g
}

func (s *memStore) UpdateState(ctx context.Context, game *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	g, ok := s.games[game.ID]
	if !ok {
		return repository.ErrGameNotFound
	}
	g.Status, g.Round, g.Turn = game.Status, game.Round, game.Turn
	g.SetActing(append([]uint(nil), game.ActingIDs()...))
	g.Result = cloneMap(game.Result)
	s.games[g.ID] = g
	return nil
}

func (s *memStore) AddPlayer(ctx context.Context, gameID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.GameID == gameID && p.UserID == userID {
			return repository.ErrDuplicateEntry
		}
	}
	s.players = append(s.players, domain.GamePlayer{ID: s.id(), GameID: gameID, UserID: userID})
	return nil
}

func (s *memStore) RemovePlayer(ctx context.Context, gameID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.players[:0:0]
	for _, p := range s.players {
		if !(p.GameID == gameID && p.UserID == userID) {
			kept = append(kept, p)
		}
	}
	s.players = kept
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return repository.ErrGameNotFound
	}
	delete(s.games, id)
	players := s.players[:0:0]
	for _, p := range s.players {
		if p.GameID != id {
			players = append(players, p)
		}
	}
	s.players = players
	actions := s.actions[:0:0]
	for _, a := range s.actions {
		if a.GameID != id {
			actions = append(actions, a)
		}
	}
	s.actions = actions
	return nil
}

func (s *memStore) List(ctx context.Context, filter repository.GameFilter) ([]domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Game
	for _, g := range s.games {
		h := s.hydrate(g)
		if filter.Mine && !h.HasPlayer(filter.ViewerID) {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, st := range filter.Status {
				match = match || st == h.Status
			}
			if !match {
				continue
			}
		}
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset >= len(out) {
		return []domain.Game{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Action side, exposed through memActions to avoid the Create name clash.
type memActions struct{ s *memStore }

func (a memActions) Create(ctx context.Context, action *domain.Action) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duplicateNext {
		s.duplicateNext = false
		return repository.ErrDuplicateEntry
	}
	for _, existing := range s.actions {
		if existing.GameID == action.GameID && existing.ActionID == action.ActionID {
			return repository.ErrDuplicateEntry
		}
	}
	action.ID = s.id()
	stored := *action
	stored.Payload = cloneMap(action.Payload)
	s.actions = append(s.actions, stored)
	return nil
}

func (a memActions) CountByGame(ctx context.Context, gameID uint) (int64, error) {
	rows, _ := a.ListByGame(ctx, gameID)
	return int64(len(rows)), nil
}

func (a memActions) ListByGame(ctx context.Context, gameID uint) ([]domain.Action, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Action{}
	for _, r := range s.actions {
		if r.GameID == gameID {
			r.Payload = cloneMap(r.Payload)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionID < out[j].ActionID })
	return out, nil
}

// recordingBus remembers every publish.
type recordingBus struct {
	mu   sync.Mutex
	msgs []published
}

type published struct {
	channel string
	payload any
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, payload: payload})
	return nil
}

func (b *recordingBus) on(channel string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []any
	for _, m := range b.msgs {
		if m.channel == channel {
			out = append(out, m.payload)
		}
	}
	return out
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	b.msgs = nil
	b.mu.Unlock()
}

// fixture wires the services on top of memStore.
type fixture struct {
	store   *memStore
	actions memActions
	bus     *recordingBus
	engines *engine.Registry
	games   *service.GameService
	svc     *service.ActionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store := newMemStore()
	actions := memActions{s: store}
	bus := &recordingBus{}
	engines := engine.NewRegistry()
	rotation.Register(engines)
	locks := lock.NewLocal()
	dispatcher := service.NewDispatcher(bus, nil, logger)

	return &fixture{
		store:   store,
		actions: actions,
		bus:     bus,
		engines: engines,
		games:   service.NewGameService(store, actions, store, locks, engines, dispatcher, nil, logger),
		svc:     service.NewActionService(store, actions, store, locks, engines, dispatcher, nil, logger),
	}
}

// startedGame creates a game owned by the first user with everyone joined
// and started.
func (f *fixture) startedGame(t *testing.T, pin bool, users ...domain.User) uint {
	t.Helper()
	ctx := context.Background()
	view, err := f.games.Create(ctx, users[0].ID, service.CreateGameInput{Title: rotation.Title, MaxPlayers: len(users), Pin: pin})
	require.NoError(t, err)
	for _, u := range users[1:] {
		_, err := f.games.Join(ctx, view.ID, u.ID)
		require.NoError(t, err)
	}
	_, err = f.games.Start(ctx, view.ID, users[0].ID)
	require.NoError(t, err)
	f.bus.reset()
	return view.ID
}
