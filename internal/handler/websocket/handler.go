package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/eventbus"
	"turn-coordinator/internal/hub"
	"turn-coordinator/internal/middleware"
	"turn-coordinator/internal/service"
)

// GameFinder loads the current view of a game.
type GameFinder interface {
	Get(ctx context.Context, gameID uint, includeActions bool) (*service.GameView, error)
}

// WebSocketHandler upgrades requests and attaches the connections to the hub.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	games    GameFinder
}

// NewWebSocketHandler builds the handler. allowedOrigin "*" or "" accepts any origin.
func NewWebSocketHandler(h *hub.Hub, games GameFinder, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if games == nil {
		panic("GameFinder cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" || allowedOrigin == "*" {
				return true
			}
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return &WebSocketHandler{upgrader: upgrader, hub: h, games: games}
}

// HandleGames streams lobby updates: GET /ws/games
func (h *WebSocketHandler) HandleGames(c *gin.Context) {
	h.attach(c, eventbus.GamesChannel, nil)
}

// HandleGame streams updates of one game: GET /ws/game/:id
// The first message is the current state of the game.
func (h *WebSocketHandler) HandleGame(c *gin.Context) {
	gameID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || gameID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game ID format"})
		return
	}

	view, err := h.games.Get(c.Request.Context(), uint(gameID), false)
	if err != nil {
		if errors.Is(err, service.ErrGameNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
			return
		}
		logrus.WithError(err).WithField("game_id", gameID).Error("WS Handler: Error loading game")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}
	initial, err := json.Marshal(service.GameEvent{Game: *view})
	if err != nil {
		logrus.WithError(err).WithField("game_id", gameID).Error("WS Handler: Failed to marshal initial state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load game"})
		return
	}

	h.attach(c, eventbus.GameChannel(uint(gameID)), initial)
}

func (h *WebSocketHandler) attach(c *gin.Context, channel string, initial []byte) {
	userID, _ := middleware.UserID(c)
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "channel": channel})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, channel, userID)
	if initial != nil {
		client.Send(initial)
	}
	if !h.hub.Register(client) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Debug("WS Handler: Client attached")
}
