package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/dto"
	"turn-coordinator/internal/engine"
	"turn-coordinator/internal/middleware"
	"turn-coordinator/internal/service"
)

// GameAPI is the part of service.GameService the handlers use.
type GameAPI interface {
	Create(ctx context.Context, userID uint, in service.CreateGameInput) (*service.GameView, error)
	Get(ctx context.Context, gameID uint, includeActions bool) (*service.GameView, error)
	List(ctx context.Context, viewerID uint, in service.ListGamesInput) ([]service.GameView, error)
	Join(ctx context.Context, gameID, userID uint) (*service.GameView, error)
	Leave(ctx context.Context, gameID, userID uint) (*service.GameView, error)
	Kick(ctx context.Context, gameID, ownerID, targetID uint) (*service.GameView, error)
	Start(ctx context.Context, gameID, userID uint) (*service.GameView, error)
	Delete(ctx context.Context, gameID, userID uint) (*service.GameView, error)
}

// ActionAPI applies submitted actions.
type ActionAPI interface {
	ProcessAction(ctx context.Context, req service.ActionRequest) (*service.GameView, error)
}

// GameHandler serves /api/game.
type GameHandler struct {
	games   GameAPI
	actions ActionAPI
}

func NewGameHandler(games GameAPI, actions ActionAPI) *GameHandler {
	if games == nil || actions == nil {
		panic("services cannot be nil for GameHandler")
	}
	return &GameHandler{games: games, actions: actions}
}

// List handles GET /api/game?status=active&mine=true&limit=20&page=2.
func (h *GameHandler) List(c *gin.Context) {
	var q dto.ListGamesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid query: "+err.Error())
		return
	}
	viewerID, _ := middleware.UserID(c)

	games, err := h.games.List(c.Request.Context(), viewerID, service.ListGamesInput{
		Status: q.Status,
		Mine:   q.Mine,
		Limit:  q.Limit,
		Page:   q.Page,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"games": games})
}

// Get handles GET /api/game/:id?include_actions=true.
func (h *GameHandler) Get(c *gin.Context) {
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	view, err := h.games.Get(c.Request.Context(), gameID, c.Query("include_actions") == "true")
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// Create handles POST /api/game.
func (h *GameHandler) Create(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	view, err := h.games.Create(c.Request.Context(), userID, service.CreateGameInput{
		Title:       req.Title,
		Description: req.Description,
		MaxPlayers:  req.MaxPlayers,
		Pin:         req.Pin,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

func (h *GameHandler) Join(c *gin.Context)   { h.membership(c, h.games.Join) }
func (h *GameHandler) Leave(c *gin.Context)  { h.membership(c, h.games.Leave) }
func (h *GameHandler) Start(c *gin.Context)  { h.membership(c, h.games.Start) }
func (h *GameHandler) Delete(c *gin.Context) { h.membership(c, h.games.Delete) }

// Kick handles POST /api/game/:id/kick {"user_id": 3}.
func (h *GameHandler) Kick(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var req dto.KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}
	view, err := h.games.Kick(c.Request.Context(), gameID, userID, req.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// Action handles POST /api/game/:id/action. The body is the action itself
// and must carry the id the client expects it to get.
func (h *GameHandler) Action(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	var payload engine.Action
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		ErrorResponse(c, http.StatusBadRequest, "Action must be a JSON object")
		return
	}

	view, err := h.actions.ProcessAction(c.Request.Context(), service.ActionRequest{
		GameID:  gameID,
		UserID:  userID,
		Payload: payload,
		BaseURL: baseURL(c),
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"game_id": gameID, "user_id": userID}).WithError(err).Debug("Handler.Action: Action rejected")
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

func (h *GameHandler) membership(c *gin.Context, op func(ctx context.Context, gameID, userID uint) (*service.GameView, error)) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	gameID, ok := gameIDParam(c)
	if !ok {
		return
	}
	view, err := op(c.Request.Context(), gameID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, view)
}

// baseURL is the scheme and host the client used, for links in emails.
func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host
}
