package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turn-coordinator/internal/eventbus"
	wshandler "turn-coordinator/internal/handler/websocket"
	"turn-coordinator/internal/hub"
	"turn-coordinator/internal/service"
)

type fakeGames map[uint]service.GameView

func (f fakeGames) Get(ctx context.Context, gameID uint, includeActions bool) (*service.GameView, error) {
	v, ok := f[gameID]
	if !ok {
		return nil, service.ErrGameNotFound
	}
	return &v, nil
}

func newServer(t *testing.T) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.NewHub(logrus.New())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	handler := wshandler.NewWebSocketHandler(h, fakeGames{4: {ID: 4, Title: "Rotation", Turn: 1}}, "*")
	r := gin.New()
	r.GET("/ws/games", handler.HandleGames)
	r.GET("/ws/game/:id", handler.HandleGame)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHandleGame_SendsCurrentStateThenUpdates(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "/ws/game/4")

	initial := read(t, conn)
	assert.Contains(t, initial, `"title":"Rotation"`)
	assert.Contains(t, initial, `"turn":1`)

	channel := eventbus.GameChannel(4)
	assert.Eventually(t, func() bool { return h.ClientCount(channel) == 1 }, time.Second, 5*time.Millisecond)
	h.Broadcast(channel, []byte(`{"game":{"id":4,"turn":2}}`))
	assert.JSONEq(t, `{"game":{"id":4,"turn":2}}`, read(t, conn))
}

func TestHandleGame_UnknownGame(t *testing.T) {
	_, srv := newServer(t)

	resp, err := http.Get(srv.URL + "/ws/game/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/ws/game/abc")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHandleGames_ReceivesLobbyUpdates(t *testing.T) {
	h, srv := newServer(t)
	conn := dial(t, srv, "/ws/games")

	assert.Eventually(t, func() bool { return h.ClientCount(eventbus.GamesChannel) == 1 }, time.Second, 5*time.Millisecond)
	h.Broadcast(eventbus.GamesChannel, []byte(`{"id":4}`))
	assert.JSONEq(t, `{"id":4}`, read(t, conn))

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount(eventbus.GamesChannel) == 0 }, 2*time.Second, 10*time.Millisecond)
}
