// Package dto holds the request and response bodies of the HTTP API.
package dto

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=50"`
	Password string `json:"password" binding:"required,min=6"`
	Email    string `json:"email" binding:"omitempty,email"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  uint   `json:"user_id"`
}

type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// NotificationsRequest toggles turn emails. Enabled is a pointer so that
// false is distinguishable from missing.
type NotificationsRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type CreateGameRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"max=500"`
	MaxPlayers  int    `json:"max_players" binding:"required"`
	Pin         bool   `json:"pin"`
}

type KickRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// ListGamesQuery is bound from the query string of GET /api/game.
type ListGamesQuery struct {
	Status []string `form:"status"`
	Mine   bool     `form:"mine"`
	Limit  int      `form:"limit"`
	Page   int      `form:"page"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
