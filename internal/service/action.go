package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/metrics"
	"turn-coordinator/internal/repository"
)

// ActionRequest is one submitted action.
type ActionRequest struct {
	GameID  uint
	UserID  uint
	Payload engine.Action // must carry the claimed "id"
	BaseURL string        // used to build links in notifications
}

// transition is the next game state derived from one action.
type transition struct {
	stored engine.Action // what goes into the action log
	round  string
	turn   int
	acting []uint
	status domain.GameStatus
	result map[string]any
}

// stateStrategy derives the next state of a game. Implementations run
// inside the action lock and must not write anything.
type stateStrategy interface {
	mode() string
	next(ctx context.Context, game *domain.Game, payload engine.Action) (transition, error)
}

// ActionService applies submitted actions to games.
type ActionService struct {
	games      repository.GameRepository
	actions    repository.ActionRepository
	tx         repository.Transactor
	locks      lock.Coordinator
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *logrus.Entry

	engineMode stateStrategy
	pinMode    stateStrategy
}

func NewActionService(
	games repository.GameRepository,
	actions repository.ActionRepository,
	tx repository.Transactor,
	locks lock.Coordinator,
	engines *engine.Registry,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *ActionService {
	if games == nil || actions == nil || tx == nil || locks == nil || engines == nil || dispatcher == nil {
		panic("ActionService dependencies cannot be nil")
	}
	return &ActionService{
		games:      games,
		actions:    actions,
		tx:         tx,
		locks:      locks,
		dispatcher: dispatcher,
		metrics:    m,
		log:        logger.WithField("component", "action_service"),
		engineMode: &engineStrategy{actions: actions, engines: engines},
		pinMode:    &pinnedStrategy{actions: actions},
	}
}

func (s *ActionService) strategyFor(game *domain.Game) stateStrategy {
	if game.GameSettings().Pin {
		return s.pinMode
	}
	return s.engineMode
}

// ProcessAction validates, persists and broadcasts one action. Everything up
// to the commit happens under the game's action lock; notifications go out
// after the lock is released.
func (s *ActionService) ProcessAction(ctx context.Context, req ActionRequest) (*GameView, error) {
	logCtx := s.log.WithFields(logrus.Fields{
		"game_id":   req.GameID,
		"user_id":   req.UserID,
		"action_id": req.Payload.ID(),
	})

	var (
		game     *domain.Game
		stored   engine.Action
		strategy stateStrategy
	)
	err := withGameLock(ctx, s.locks, s.metrics, lock.Action, req.GameID, func(ctx context.Context) error {
		var err error
		game, err = loadGame(ctx, s.games, req.GameID)
		if err != nil {
			return err
		}
		if !game.HasPlayer(req.UserID) {
			return withReason(ErrAuthorizationDenied, "Only players can submit actions")
		}

		strategy = s.strategyFor(game)
		next, err := strategy.next(ctx, game, req.Payload)
		if err != nil {
			return err
		}

		row := &domain.Action{
			GameID:   game.ID,
			ActionID: req.Payload.ID(),
			UserID:   req.UserID,
			Turn:     next.turn,
			Round:    next.round,
			Payload:  datatypes.JSONMap(next.stored),
		}
		game.Round = next.round
		game.Turn = next.turn
		game.Status = next.status
		game.Result = datatypes.JSONMap(next.result)
		game.SetActing(next.acting)
		game.UpdatedAt = time.Now()

		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := s.actions.Create(ctx, row); err != nil {
				return err
			}
			return s.games.UpdateState(ctx, game)
		})
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				return withReason(ErrOutOfSync, "Game out of sync")
			}
			logCtx.WithError(err).Error("Failed to persist action")
			return ErrInternalServer
		}
		stored = next.stored
		return nil
	})
	if err != nil {
		s.metrics.ActionRejected(rejectReason(err))
		if !errors.Is(err, ErrInternalServer) {
			logCtx.WithError(err).Info("Action rejected")
		}
		return nil, err
	}

	s.metrics.ActionApplied(strategy.mode())
	logCtx.WithField("mode", strategy.mode()).Info("Action applied")

	s.dispatcher.ActionApplied(ctx, game, stored, req.BaseURL)
	view := NewGameView(game, nil)
	return &view, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrOutOfSync):
		return "out_of_sync"
	case errors.Is(err, ErrRuleViolation):
		return "rule_violation"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorizationDenied):
		return "forbidden"
	case errors.Is(err, ErrGameNotFound):
		return "not_found"
	}
	return "internal"
}

func loadGame(ctx context.Context, games repository.GameRepository, id uint) (*domain.Game, error) {
	game, err := games.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			return nil, withReason(ErrGameNotFound, "Game does not exist")
		}
		logrus.WithError(err).WithField("game_id", id).Error("Failed to load game")
		return nil, ErrInternalServer
	}
	return game, nil
}

func historyOf(ctx context.Context, actions repository.ActionRepository, gameID uint) ([]engine.Action, error) {
	rows, err := actions.ListByGame(ctx, gameID)
	if err != nil {
		logrus.WithError(err).WithField("game_id", gameID).Error("Failed to load action history")
		return nil, ErrInternalServer
	}
	history := make([]engine.Action, len(rows))
	for i, r := range rows {
		history[i] = engine.Action(r.Payload)
	}
	return history, nil
}

// engineStrategy replays the action log through the game's rule engine.
type engineStrategy struct {
	actions repository.ActionRepository
	engines *engine.Registry
}

func (e *engineStrategy) mode() string { return "engine" }

func (e *engineStrategy) next(ctx context.Context, game *domain.Game, payload engine.Action) (transition, error) {
	history, err := historyOf(ctx, e.actions, game.ID)
	if err != nil {
		return transition{}, err
	}
	current, err := e.engines.Load(game.Title, game.PlayerNames(), history)
	if err != nil {
		logrus.WithError(err).WithField("game_id", game.ID).Error("Failed to rebuild engine state")
		return transition{}, ErrInternalServer
	}
	if payload.ID() != current.ActionCount()+1 {
		return transition{}, withReason(ErrOutOfSync, "Game out of sync")
	}

	snapshot, err := current.Process(payload)
	if err != nil {
		if engine.IsRuleViolation(err) {
			return transition{}, withReason(ErrRuleViolation, "%s", err.Error())
		}
		logrus.WithError(err).WithField("game_id", game.ID).Error("Engine failed to process action")
		return transition{}, ErrInternalServer
	}

	applied := snapshot.Actions()
	t := transition{
		stored: applied[len(applied)-1],
		round:  snapshot.Round(),
		turn:   snapshot.Turn(),
		acting: game.ActingFromNames(snapshot.ActivePlayers()),
		status: domain.StatusActive,
		result: map[string]any{},
	}
	if snapshot.Finished() {
		t.status = domain.StatusFinished
		t.result = snapshot.Result()
	}
	return t, nil
}

// Metadata keys of a pinned action.
const (
	metaKey    = "meta"
	metaRound  = "round"
	metaTurn   = "turn"
	metaActive = "active_players"
	metaResult = "game_result"
	metaStatus = "game_status"
)

// pinnedStrategy trusts the metadata the client sends along with the action.
type pinnedStrategy struct {
	actions repository.ActionRepository
}

func (p *pinnedStrategy) mode() string { return "pin" }

func (p *pinnedStrategy) next(ctx context.Context, game *domain.Game, payload engine.Action) (transition, error) {
	raw, ok := payload[metaKey].(map[string]any)
	if !ok {
		return transition{}, withReason(ErrValidation, "Game missing metadata")
	}
	meta := engine.Action(raw)

	count, err := p.actions.CountByGame(ctx, game.ID)
	if err != nil {
		logrus.WithError(err).WithField("game_id", game.ID).Error("Failed to count actions")
		return transition{}, ErrInternalServer
	}
	if int64(payload.ID()) != count+1 {
		return transition{}, withReason(ErrOutOfSync, "Game out of sync")
	}

	t := transition{
		stored: payload.Without(metaKey),
		round:  meta.String(metaRound),
		status: game.Status,
		result: map[string]any{},
	}
	if turn, ok := meta.Int(metaTurn); ok {
		t.turn = turn
	}
	if res, ok := meta[metaResult].(map[string]any); ok {
		t.result = res
	}

	names := []string{}
	if list, ok := meta[metaActive].([]any); ok {
		for _, n := range list {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	}
	t.acting = game.ActingFromNames(names)

	if s, present := meta[metaStatus]; present && s != nil {
		str, _ := s.(string)
		status := domain.GameStatus(str)
		if !game.Status.CanBecome(status) {
			return transition{}, withReason(ErrValidation, "Invalid game status %q", str)
		}
		t.status = status
	}
	return t, nil
}
