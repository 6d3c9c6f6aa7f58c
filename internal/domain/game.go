package domain

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// GameStatus is the lifecycle stage of a game. It only moves forward:
// new -> active -> finished.
type GameStatus string

const (
	StatusNew      GameStatus = "new"
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

func (s GameStatus) rank() int {
	switch s {
	case StatusNew:
		return 0
	case StatusActive:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s GameStatus) Valid() bool { return s.rank() >= 0 }

// CanBecome reports whether a game in status s may move to next.
// Staying in the same status is allowed.
func (s GameStatus) CanBecome(next GameStatus) bool {
	return s.Valid() && next.Valid() && s.rank() <= next.rank()
}

// GameSettings is stored as a JSON column on Game.
type GameSettings struct {
	Pin  bool  `json:"pin"`  // state is taken from client-supplied metadata instead of the rule engine
	Seed int64 `json:"seed"` // random seed handed to the rule engine
}

// Game is one multiplayer session.
type Game struct {
	ID          uint                             `gorm:"primaryKey"`
	Title       string                           `gorm:"size:100;not null;index"`
	Description string                           `gorm:"size:500"`
	Status      GameStatus                       `gorm:"size:16;not null;index"`
	Round       string                           `gorm:"size:100"`
	Turn        int                              `gorm:"not null"`
	Acting      datatypes.JSONType[[]uint]       // user ids whose turn it is
	Result      datatypes.JSONMap                // opaque engine result, empty until finished
	Settings    datatypes.JSONType[GameSettings] // pin flag and seed
	MaxPlayers  int                              `gorm:"not null"`
	UserID      uint                             `gorm:"index;not null"` // owner
	Owner       User                             `gorm:"foreignKey:UserID"`
	Players     []GamePlayer                     `gorm:"foreignKey:GameID"`
	CreatedAt   time.Time                        `gorm:"autoCreateTime"`
	UpdatedAt   time.Time                        `gorm:"autoUpdateTime;index"`
}

// GamePlayer joins a user to a game. ID order is join order.
type GamePlayer struct {
	ID        uint      `gorm:"primaryKey"`
	GameID    uint      `gorm:"not null;uniqueIndex:idx_game_player"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_game_player;index"`
	User      User      `gorm:"foreignKey:UserID"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// OrderedPlayers returns the users of the game in join order.
func (g *Game) OrderedPlayers() []User {
	players := make([]GamePlayer, len(g.Players))
	copy(players, g.Players)
	sort.SliceStable(players, func(i, j int) bool { return players[i].ID < players[j].ID })

	users := make([]User, 0, len(players))
	for _, p := range players {
		users = append(users, p.User)
	}
	return users
}

// PlayerNames returns display names in join order.
func (g *Game) PlayerNames() []string {
	users := g.OrderedPlayers()
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	return names
}

func (g *Game) HasPlayer(userID uint) bool {
	for _, p := range g.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (g *Game) IsOwner(userID uint) bool { return g.UserID == userID }

func (g *Game) ActingIDs() []uint {
	ids := g.Acting.Data()
	if ids == nil {
		return []uint{}
	}
	return ids
}

func (g *Game) SetActing(ids []uint) {
	if ids == nil {
		ids = []uint{}
	}
	g.Acting = datatypes.NewJSONType(ids)
}

func (g *Game) GameSettings() GameSettings { return g.Settings.Data() }

// ActingFromNames maps engine player names back to user ids, keeping join order.
func (g *Game) ActingFromNames(names []string) []uint {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	ids := make([]uint, 0, len(names))
	for _, u := range g.OrderedPlayers() {
		if _, ok := wanted[u.Name]; ok {
			ids = append(ids, u.ID)
		}
	}
	return ids
}
