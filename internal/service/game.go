package service

import (
	"context"
	"errors"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/metrics"
	"turn-coordinator/internal/repository"
)

// List paging limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// CreateGameInput is what a client sends to open a game.
type CreateGameInput struct {
	Title       string
	Description string
	MaxPlayers  int
	Pin         bool
}

// ListGamesInput filters the game list.
type ListGamesInput struct {
	Status []string
	Mine   bool
	Limit  int
	Page   int // 1-based
}

// GameService implements game creation, queries and membership changes.
// Every change of an existing game runs under its action lock, so it is
// ordered with respect to submitted actions.
type GameService struct {
	games      repository.GameRepository
	actions    repository.ActionRepository
	tx         repository.Transactor
	locks      lock.Coordinator
	engines    *engine.Registry
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *logrus.Entry
	seed       func() int64
}

func NewGameService(
	games repository.GameRepository,
	actions repository.ActionRepository,
	tx repository.Transactor,
	locks lock.Coordinator,
	engines *engine.Registry,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *GameService {
	if games == nil || actions == nil || tx == nil || locks == nil || engines == nil || dispatcher == nil {
		panic("GameService dependencies cannot be nil")
	}
	return &GameService{
		games:      games,
		actions:    actions,
		tx:         tx,
		locks:      locks,
		engines:    engines,
		dispatcher: dispatcher,
		metrics:    m,
		log:        logger.WithField("component", "game_service"),
		seed:       rand.Int63,
	}
}

// Create opens a new game owned by userID, who joins it right away.
func (s *GameService) Create(ctx context.Context, userID uint, in CreateGameInput) (*GameView, error) {
	if userID == 0 {
		return nil, ErrAuthenticationRequired
	}
	if !s.engines.Has(in.Title) {
		return nil, withReason(ErrValidation, "Unknown game title %q", in.Title)
	}
	if in.MaxPlayers < 2 {
		return nil, withReason(ErrValidation, "max_players must be at least 2")
	}
	initial, err := s.engines.Load(in.Title, nil, nil)
	if err != nil {
		s.log.WithError(err).WithField("title", in.Title).Error("Failed to load initial engine state")
		return nil, ErrInternalServer
	}

	game := &domain.Game{
		Title:       in.Title,
		Description: in.Description,
		Status:      domain.StatusNew,
		Round:       initial.Round(),
		Turn:        initial.Turn(),
		Result:      datatypes.JSONMap{},
		Settings:    datatypes.NewJSONType(domain.GameSettings{Pin: in.Pin, Seed: s.seed()}),
		MaxPlayers:  in.MaxPlayers,
		UserID:      userID,
	}
	game.SetActing(nil)

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.games.Create(ctx, game); err != nil {
			return err
		}
		return s.games.AddPlayer(ctx, game.ID, userID)
	})
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("Failed to create game")
		return nil, ErrInternalServer
	}

	created, err := loadGame(ctx, s.games, game.ID)
	if err != nil {
		return nil, err
	}
	view := NewGameView(created, nil)
	s.log.WithFields(logrus.Fields{"game_id": game.ID, "user_id": userID, "title": game.Title}).Info("Game created")
	s.dispatcher.GameChanged(ctx, view)
	return &view, nil
}

// Get returns one game, with its action history when includeActions is set.
func (s *GameService) Get(ctx context.Context, gameID uint, includeActions bool) (*GameView, error) {
	game, err := loadGame(ctx, s.games, gameID)
	if err != nil {
		return nil, err
	}
	var rows []domain.Action
	if includeActions {
		if rows, err = s.actions.ListByGame(ctx, gameID); err != nil {
			s.log.WithError(err).WithField("game_id", gameID).Error("Failed to load actions")
			return nil, ErrInternalServer
		}
	}
	view := NewGameView(game, rows)
	return &view, nil
}

// List returns the games visible to viewerID (0 for anonymous viewers).
func (s *GameService) List(ctx context.Context, viewerID uint, in ListGamesInput) ([]GameView, error) {
	if in.Mine && viewerID == 0 {
		return nil, ErrAuthenticationRequired
	}
	filter := repository.GameFilter{ViewerID: viewerID, Mine: in.Mine, Limit: in.Limit}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if in.Page > 1 {
		filter.Offset = (in.Page - 1) * filter.Limit
	}
	for _, st := range in.Status {
		status := domain.GameStatus(st)
		if !status.Valid() {
			return nil, withReason(ErrValidation, "Unknown status %q", st)
		}
		filter.Status = append(filter.Status, status)
	}

	games, err := s.games.List(ctx, filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to list games")
		return nil, ErrInternalServer
	}
	views := make([]GameView, len(games))
	for i := range games {
		views[i] = NewGameView(&games[i], nil)
	}
	return views, nil
}

// Join adds userID to a game that is not full. Games may be joined at any
// status.
func (s *GameService) Join(ctx context.Context, gameID, userID uint) (*GameView, error) {
	return s.mutate(ctx, gameID, userID, "join", func(ctx context.Context, game *domain.Game) error {
		if game.HasPlayer(userID) {
			return withReason(ErrValidation, "Already joined this game")
		}
		if len(game.Players) >= game.MaxPlayers {
			return withReason(ErrValidation, "Cannot join game because it is full")
		}
		err := s.games.AddPlayer(ctx, game.ID, userID)
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return withReason(ErrValidation, "Already joined this game")
		}
		return err
	})
}

// Leave removes userID from the game.
func (s *GameService) Leave(ctx context.Context, gameID, userID uint) (*GameView, error) {
	return s.mutate(ctx, gameID, userID, "leave", func(ctx context.Context, game *domain.Game) error {
		if err := requirePlayer(game, userID); err != nil {
			return err
		}
		return s.removePlayer(ctx, game, userID)
	})
}

// Kick lets the owner remove another player.
func (s *GameService) Kick(ctx context.Context, gameID, ownerID, targetID uint) (*GameView, error) {
	return s.mutate(ctx, gameID, ownerID, "kick", func(ctx context.Context, game *domain.Game) error {
		if err := requireOwner(game, ownerID); err != nil {
			return err
		}
		if !game.HasPlayer(targetID) {
			return withReason(ErrValidation, "User is not a player of this game")
		}
		return s.removePlayer(ctx, game, targetID)
	})
}

// Start moves a new game to active; the first player to join acts first.
func (s *GameService) Start(ctx context.Context, gameID, userID uint) (*GameView, error) {
	return s.mutate(ctx, gameID, userID, "start", func(ctx context.Context, game *domain.Game) error {
		if err := requireOwner(game, userID); err != nil {
			return err
		}
		if game.Status != domain.StatusNew {
			return withReason(ErrValidation, "Game has already started")
		}
		players := game.OrderedPlayers()
		if len(players) < 2 {
			return withReason(ErrValidation, "Cannot play 1 player")
		}
		game.Status = domain.StatusActive
		game.SetActing([]uint{players[0].ID})
		return s.games.UpdateState(ctx, game)
	})
}

// Delete removes the game with its players and actions. The returned view is
// the last state of the game, flagged as deleted.
func (s *GameService) Delete(ctx context.Context, gameID, userID uint) (*GameView, error) {
	if userID == 0 {
		return nil, ErrAuthenticationRequired
	}
	var view GameView
	err := withGameLock(ctx, s.locks, s.metrics, lock.Action, gameID, func(ctx context.Context) error {
		game, err := loadGame(ctx, s.games, gameID)
		if err != nil {
			return err
		}
		if err := requireOwner(game, userID); err != nil {
			return err
		}
		view = NewGameView(game, nil)
		view.Deleted = true
		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			return s.games.Delete(ctx, gameID)
		})
		if err != nil {
			s.log.WithError(err).WithField("game_id", gameID).Error("Failed to delete game")
			return ErrInternalServer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID}).Info("Game deleted")
	s.dispatcher.GameChanged(ctx, view)
	return &view, nil
}

// mutate loads the game under its action lock, applies fn in a transaction
// and broadcasts the result once the lock is released.
func (s *GameService) mutate(ctx context.Context, gameID, userID uint, op string, fn func(ctx context.Context, game *domain.Game) error) (*GameView, error) {
	if userID == 0 {
		return nil, ErrAuthenticationRequired
	}
	logCtx := s.log.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID, "op": op})

	var view GameView
	err := withGameLock(ctx, s.locks, s.metrics, lock.Action, gameID, func(ctx context.Context) error {
		game, err := loadGame(ctx, s.games, gameID)
		if err != nil {
			return err
		}
		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			return fn(ctx, game)
		})
		if err != nil {
			if isServiceError(err) {
				return err
			}
			logCtx.WithError(err).Error("Game update failed")
			return ErrInternalServer
		}
		updated, err := loadGame(ctx, s.games, gameID)
		if err != nil {
			return err
		}
		view = NewGameView(updated, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx.Info("Game updated")
	s.dispatcher.GameChanged(ctx, view)
	return &view, nil
}

// removePlayer drops userID from the players and from the acting set.
func (s *GameService) removePlayer(ctx context.Context, game *domain.Game, userID uint) error {
	if err := s.games.RemovePlayer(ctx, game.ID, userID); err != nil {
		return err
	}
	acting := game.ActingIDs()
	kept := make([]uint, 0, len(acting))
	for _, id := range acting {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(acting) {
		return nil
	}
	game.SetActing(kept)
	return s.games.UpdateState(ctx, game)
}

func requirePlayer(game *domain.Game, userID uint) error {
	if !game.HasPlayer(userID) {
		return withReason(ErrAuthorizationDenied, "Only players of this game can do that")
	}
	return nil
}

// requireOwner also requires the owner to still be a player.
func requireOwner(game *domain.Game, userID uint) error {
	if err := requirePlayer(game, userID); err != nil {
		return err
	}
	if !game.IsOwner(userID) {
		return withReason(ErrAuthorizationDenied, "Only the owner of this game can do that")
	}
	return nil
}

func isServiceError(err error) bool {
	for _, kind := range []error{
		ErrAuthenticationRequired, ErrAuthorizationDenied, ErrGameNotFound,
		ErrValidation, ErrOutOfSync, ErrRuleViolation, ErrInternalServer,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
