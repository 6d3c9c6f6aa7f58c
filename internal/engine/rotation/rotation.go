// Package rotation is a generic seat-rotation engine: players act one after
// another in join order until someone ends the game. It is the reference
// implementation of the engine contract and carries no game-specific rules.
package rotation

import (
	"turn-coordinator/internal/engine"
)

const (
	Title = "Rotation"

	RoundPlay     = "Play"
	RoundGameOver = "Game Over"

	TypeMove    = "move"
	TypePass    = "pass"
	TypeEndGame = "end_game"
)

type state struct {
	players  []string
	actions  []engine.Action
	seat     int
	turn     int
	finished bool
	scores   map[string]int
}

// Register makes the engine available under Title.
func Register(r *engine.Registry) {
	r.Register(Title, New)
}

// New replays actions over players and returns the resulting snapshot.
func New(players []string, actions []engine.Action) (engine.State, error) {
	seats := make([]string, len(players))
	copy(seats, players)
	initial := &state{
		players: seats,
		turn:    1,
		scores:  make(map[string]int, len(players)),
	}
	return engine.Replay(initial, actions)
}

func (s *state) Round() string {
	if s.finished {
		return RoundGameOver
	}
	return RoundPlay
}

func (s *state) Turn() int        { return s.turn }
func (s *state) ActionCount() int { return len(s.actions) }
func (s *state) Finished() bool   { return s.finished }

func (s *state) Actions() []engine.Action {
	out := make([]engine.Action, len(s.actions))
	copy(out, s.actions)
	return out
}

func (s *state) ActivePlayers() []string {
	if s.finished || len(s.players) == 0 {
		return []string{}
	}
	return []string{s.players[s.seat]}
}

func (s *state) Result() map[string]any {
	if !s.finished {
		return map[string]any{}
	}
	res := make(map[string]any, len(s.players))
	for _, p := range s.players {
		res[p] = s.scores[p]
	}
	return res
}

func (s *state) Process(action engine.Action) (engine.State, error) {
	next := s.clone()
	normalized := action.Clone()
	normalized["id"] = len(s.actions) + 1

	switch action.Type() {
	case engine.TypeMessage:
		if action.Message() == "" {
			return nil, engine.Violation("message must not be empty")
		}
	case TypeMove, TypePass, TypeEndGame:
		if err := s.checkSeat(action); err != nil {
			return nil, err
		}
		switch action.Type() {
		case TypeMove:
			points := 0
			if _, present := action["points"]; present {
				p, ok := action.Int("points")
				if !ok {
					return nil, engine.Violation("points must be an integer")
				}
				points = p
			}
			next.scores[action.Entity()] += points
			next.advance()
		case TypePass:
			next.advance()
		case TypeEndGame:
			next.finished = true
		}
	default:
		return nil, engine.Violation("unknown action type %q", action.Type())
	}

	next.actions = append(next.actions, normalized)
	return next, nil
}

func (s *state) checkSeat(action engine.Action) error {
	if s.finished {
		return engine.Violation("game is over")
	}
	if len(s.players) < 2 {
		return engine.Violation("not enough players")
	}
	entity := action.Entity()
	if entity == "" {
		return engine.Violation("action is missing entity")
	}
	if entity != s.players[s.seat] {
		return engine.Violation("it is not %s's turn", entity)
	}
	return nil
}

func (s *state) advance() {
	s.seat = (s.seat + 1) % len(s.players)
	if s.seat == 0 {
		s.turn++
	}
}

func (s *state) clone() *state {
	c := &state{
		players:  s.players,
		actions:  make([]engine.Action, len(s.actions), len(s.actions)+1),
		seat:     s.seat,
		turn:     s.turn,
		finished: s.finished,
		scores:   make(map[string]int, len(s.scores)),
	}
	copy(c.actions, s.actions)
	for k, v := range s.scores {
		c.scores[k] = v
	}
	return c
}
