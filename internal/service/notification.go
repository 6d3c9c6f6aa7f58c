package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/metrics"
)

// Turn notification kinds.
const (
	KindYourTurn        = "Your Turn"
	KindReceivedMessage = "Received Message"
)

// Dispatcher turns state changes into bus messages. Publishing never fails
// the caller: errors are logged and counted.
type Dispatcher struct {
	bus     eventbus.Publisher
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewDispatcher(bus eventbus.Publisher, m *metrics.Metrics, logger *logrus.Logger) *Dispatcher {
	if bus == nil {
		panic("event bus cannot be nil for Dispatcher")
	}
	return &Dispatcher{bus: bus, metrics: m, log: logger.WithField("component", "dispatcher")}
}

// Classify decides who hears about an applied action. Chat messages go to
// the players mentioned as "@name", everything else to the acting players.
func Classify(game *domain.Game, action engine.Action) (string, []uint) {
	if action.Type() == engine.TypeMessage {
		msg := action.Message()
		ids := []uint{}
		for _, u := range game.OrderedPlayers() {
			if strings.Contains(msg, "@"+u.Name) {
				ids = append(ids, u.ID)
			}
		}
		return KindReceivedMessage, ids
	}
	return KindYourTurn, game.ActingIDs()
}

// GameURL is the link put into turn notifications.
func GameURL(baseURL string, gameID uint) string {
	return fmt.Sprintf("%s/game/%d", strings.TrimRight(baseURL, "/"), gameID)
}

// ActionApplied publishes the turn event (when anyone needs telling) and the
// new game state.
func (d *Dispatcher) ActionApplied(ctx context.Context, game *domain.Game, action engine.Action, baseURL string) {
	ctx = context.WithoutCancel(ctx)

	kind, ids := Classify(game, action)
	if len(ids) > 0 {
		d.publish(ctx, "turn", eventbus.TurnChannel, TurnEvent{
			UserIDs: ids,
			GameID:  game.ID,
			GameURL: GameURL(baseURL, game.ID),
			Type:    kind,
		})
	}

	view := NewGameView(game, nil)
	d.publish(ctx, "game", eventbus.GameChannel(game.ID), GameEvent{Game: view, Action: action})
	d.publish(ctx, "games", eventbus.GamesChannel, view)
}

// GameChanged broadcasts view after a membership change.
func (d *Dispatcher) GameChanged(ctx context.Context, view GameView) {
	ctx = context.WithoutCancel(ctx)
	d.publish(ctx, "game", eventbus.GameChannel(view.ID), GameEvent{Game: view})
	d.publish(ctx, "games", eventbus.GamesChannel, view)
}

func (d *Dispatcher) publish(ctx context.Context, kind, channel string, payload any) {
	if err := d.bus.Publish(ctx, channel, payload); err != nil {
		d.metrics.PublishFailed(kind)
		d.log.WithError(err).WithField("channel", channel).Error("Failed to publish notification")
		return
	}
	d.metrics.Published(kind)
}
