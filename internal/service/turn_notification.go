package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/lock"
	"turn-coordinator/internal/mail"
	"turn-coordinator/internal/metrics"
	"turn-coordinator/internal/repository"
)

// Default presence and throttle windows.
const (
	DefaultPresenceWindow = 60 * time.Second
	DefaultThrottleWindow = 60 * time.Second
)

// TurnNotifierConfig tunes TurnNotifier.
type TurnNotifierConfig struct {
	AppName        string
	PresenceWindow time.Duration // users active more recently than this are online
	ThrottleWindow time.Duration // at most one email per user per window
}

// TurnNotifier consumes turn events and emails the players who are offline,
// want email and were not emailed recently.
type TurnNotifier struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	games    repository.GameRepository
	actions  repository.ActionRepository
	locks    lock.Coordinator
	sender   mail.Sender
	cfg      TurnNotifierConfig
	metrics  *metrics.Metrics
	log      *logrus.Entry
	now      func() time.Time
}

func NewTurnNotifier(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	games repository.GameRepository,
	actions repository.ActionRepository,
	locks lock.Coordinator,
	sender mail.Sender,
	cfg TurnNotifierConfig,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *TurnNotifier {
	if cfg.PresenceWindow <= 0 {
		cfg.PresenceWindow = DefaultPresenceWindow
	}
	if cfg.ThrottleWindow <= 0 {
		cfg.ThrottleWindow = DefaultThrottleWindow
	}
	return &TurnNotifier{
		users:    users,
		sessions: sessions,
		games:    games,
		actions:  actions,
		locks:    locks,
		sender:   sender,
		cfg:      cfg,
		metrics:  m,
		log:      logger.WithField("component", "turn_notifier"),
		now:      time.Now,
	}
}

// Subscribe attaches the notifier to the turn channel of sub.
func (n *TurnNotifier) Subscribe(sub eventbus.Subscriber) error {
	return sub.Subscribe(eventbus.TurnChannel, n.Handle)
}

// Handle processes one turn event. Errors returned here are batch level
// lookups worth retrying; per recipient failures are only logged.
func (n *TurnNotifier) Handle(ctx context.Context, msg eventbus.Message) error {
	var ev TurnEvent
	if err := msg.Decode(&ev); err != nil {
		n.log.WithError(err).Warn("Dropping malformed turn event")
		return err
	}
	if ev.GameID == 0 || len(ev.UserIDs) == 0 {
		n.log.WithField("payload", string(msg.Payload)).Warn("Dropping incomplete turn event")
		return fmt.Errorf("%w: turn event without game or users", eventbus.ErrMalformed)
	}

	return withGameLock(ctx, n.locks, n.metrics, lock.Turn, ev.GameID, func(ctx context.Context) error {
		return n.notify(ctx, ev)
	})
}

func (n *TurnNotifier) notify(ctx context.Context, ev TurnEvent) error {
	logCtx := n.log.WithFields(logrus.Fields{"game_id": ev.GameID, "type": ev.Type})

	users, err := n.users.FindByIDs(ctx, ev.UserIDs)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	game, err := n.games.FindByID(ctx, ev.GameID)
	if err != nil {
		if errors.Is(err, repository.ErrGameNotFound) {
			logCtx.Debug("Game is gone, nothing to notify")
			return nil
		}
		return fmt.Errorf("load game: %w", err)
	}

	now := n.now()
	recipients := n.filter(ctx, users, now)
	if len(recipients) == 0 {
		return nil
	}

	rows, err := n.actions.ListByGame(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("load actions: %w", err)
	}
	html, err := mail.RenderTurn(n.turnEmail(game, rows, ev))
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s Game: %s - %d - %s", n.cfg.AppName, game.Title, game.ID, ev.Type)

	for _, u := range recipients {
		userLog := logCtx.WithField("user_id", u.ID)
		if err := n.users.MarkNotified(ctx, u.ID, now); err != nil {
			userLog.WithError(err).Error("Failed to record notification time")
		}
		err := n.sender.Send(ctx, mail.Message{To: u.Email, ToName: u.Name, Subject: subject, HTML: html})
		if err != nil {
			n.metrics.Email("failed")
			userLog.WithError(err).Error("Failed to send turn email")
			continue
		}
		n.metrics.Email("sent")
		userLog.Info("Turn email sent")
	}
	return nil
}

// filter keeps the users that should get an email at now.
func (n *TurnNotifier) filter(ctx context.Context, users []domain.User, now time.Time) []domain.User {
	presentSince := now.Add(-n.cfg.PresenceWindow)
	throttledSince := now.Add(-n.cfg.ThrottleWindow)

	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		userLog := n.log.WithField("user_id", u.ID)

		last, err := n.sessions.LastActivity(ctx, u.ID)
		if err != nil {
			n.metrics.Email("failed")
			userLog.WithError(err).Error("Failed to look up presence")
			continue
		}
		switch {
		case last.After(presentSince):
			n.metrics.Email("present")
		case !u.NotificationsEnabled:
			n.metrics.Email("disabled")
		case u.LastNotifiedAt != nil && u.LastNotifiedAt.After(throttledSince):
			n.metrics.Email("throttled")
		case u.Email == "":
			n.metrics.Email("no_address")
		default:
			out = append(out, u)
		}
	}
	return out
}

func (n *TurnNotifier) turnEmail(game *domain.Game, rows []domain.Action, ev TurnEvent) mail.TurnEmail {
	byID := make(map[uint]string, len(game.Players))
	for _, u := range game.OrderedPlayers() {
		byID[u.ID] = u.Name
	}
	acting := make([]string, 0, len(game.ActingIDs()))
	for _, id := range game.ActingIDs() {
		acting = append(acting, byID[id])
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = describeAction(r, byID[r.UserID])
	}

	return mail.TurnEmail{
		AppName: n.cfg.AppName,
		Kind:    ev.Type,
		GameURL: ev.GameURL,
		GameID:  game.ID,
		Title:   game.Title,
		Status:  string(game.Status),
		Round:   game.Round,
		Turn:    game.Turn,
		Players: game.PlayerNames(),
		Acting:  acting,
		Actions: lines,
	}
}

func describeAction(row domain.Action, userName string) string {
	a := engine.Action(row.Payload)
	if userName == "" {
		userName = fmt.Sprintf("user %d", row.UserID)
	}
	if a.Type() == engine.TypeMessage {
		return fmt.Sprintf("%d. %s: %q", row.ActionID, userName, a.Message())
	}
	return fmt.Sprintf("%d. %s: %s", row.ActionID, userName, a.Type())
}
