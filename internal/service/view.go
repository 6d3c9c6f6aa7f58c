package service

import (
	"turn-coordinator/internal/domain"
	"turn-coordinator/internal/engine"
)

// UserView is the public part of a user.
type UserView struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// GameView is the representation of a game sent to clients and broadcast on
// the bus.
type GameView struct {
	ID          uint                `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	User        UserView            `json:"user"`
	Players     []UserView          `json:"players"`
	MaxPlayers  int                 `json:"max_players"`
	Settings    domain.GameSettings `json:"settings"`
	Status      domain.GameStatus   `json:"status"`
	Round       string              `json:"round"`
	Turn        int                 `json:"turn"`
	Acting      []uint              `json:"acting"`
	Result      map[string]any      `json:"result"`
	Actions     []engine.Action     `json:"actions,omitempty"`
	CreatedAt   int64               `json:"created_at"`
	UpdatedAt   int64               `json:"updated_at"`
	Deleted     bool                `json:"deleted,omitempty"`
}

// GameEvent is what the per-game channel carries. Action is set when the
// change came from an applied action.
type GameEvent struct {
	Game   GameView      `json:"game"`
	Action engine.Action `json:"action,omitempty"`
}

// TurnEvent asks the turn consumer to notify users about a game.
type TurnEvent struct {
	UserIDs []uint `json:"user_ids"`
	GameID  uint   `json:"game_id"`
	GameURL string `json:"game_url"`
	Type    string `json:"type"`
}

// NewGameView renders game. Actions are included only when actions is non-nil.
func NewGameView(game *domain.Game, actions []domain.Action) GameView {
	players := game.OrderedPlayers()
	view := GameView{
		ID:          game.ID,
		Title:       game.Title,
		Description: game.Description,
		User:        UserView{ID: game.UserID, Name: game.Owner.Name},
		Players:     make([]UserView, len(players)),
		MaxPlayers:  game.MaxPlayers,
		Settings:    game.GameSettings(),
		Status:      game.Status,
		Round:       game.Round,
		Turn:        game.Turn,
		Acting:      game.ActingIDs(),
		Result:      map[string]any(game.Result),
		CreatedAt:   game.CreatedAt.Unix(),
		UpdatedAt:   game.UpdatedAt.Unix(),
	}
	for i, u := range players {
		view.Players[i] = UserView{ID: u.ID, Name: u.Name}
	}
	if view.Result == nil {
		view.Result = map[string]any{}
	}
	if actions != nil {
		view.Actions = make([]engine.Action, len(actions))
		for i, a := range actions {
			view.Actions[i] = engine.Action(a.Payload)
		}
	}
	return view
}
