// Package hub fans bus events out to websocket clients. Clients attach to
// exactly one channel ("/games" or "/game/<id>").
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"turn-coordinator/internal/eventbus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames and the odd keepalive.
	maxMessageSize = 512

	sendBuffer = 256
)

type hubMessage struct {
	register bool
	client   *Client
}

// Hub keeps the connected clients per channel.
type Hub struct {
	messageChan chan hubMessage

	channels map[string]map[*Client]struct{}
	mu       sync.RWMutex

	log *logrus.Entry
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		messageChan: make(chan hubMessage, 512),
		channels:    make(map[string]map[*Client]struct{}),
		log:         logger.WithField("component", "hub"),
	}
}

// Subscribe forwards the lobby channel and every per-game channel of sub to
// the attached clients.
func (h *Hub) Subscribe(sub eventbus.Subscriber) error {
	for _, pattern := range []string{eventbus.GamesChannel, eventbus.GameChannelPattern} {
		if err := sub.Subscribe(pattern, h.handle); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) handle(_ context.Context, msg eventbus.Message) error {
	h.Broadcast(msg.Channel, msg.Payload)
	return nil
}

// Run processes registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Hub is running")
	for {
		select {
		case msg := <-h.messageChan:
			if msg.register {
				h.registerClient(msg.client)
			} else {
				h.unregisterClient(msg.client)
			}
		case <-ctx.Done():
			h.closeAll()
			h.log.Info("Hub stopped")
			return
		}
	}
}

// Register queues c for registration. It reports false when the hub is
// overloaded.
func (h *Hub) Register(c *Client) bool {
	return h.queue(hubMessage{register: true, client: c})
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.messageChan <- hubMessage{client: c}:
	case <-time.After(time.Second):
		h.log.WithFields(logrus.Fields{"user_id": c.userID, "channel": c.channel}).Warn("Timeout sending unregister message to hub")
	}
}

func (h *Hub) queue(msg hubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		h.log.WithField("channel", msg.client.channel).Warn("Hub message channel full, dropping message")
		return false
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.channels[c.channel]
	if !ok {
		clients = make(map[*Client]struct{})
		h.channels[c.channel] = clients
	}
	clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"user_id": c.userID, "channel": c.channel}).Debug("Client registered")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.channels, c.channel)
	}
	h.log.WithFields(logrus.Fields{"user_id": c.userID, "channel": c.channel}).Debug("Client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel, clients := range h.channels {
		for c := range clients {
			close(c.send)
		}
		delete(h.channels, channel)
	}
}

// Broadcast hands payload to every client on channel and returns how many
// accepted it. Clients with a full queue are skipped.
func (h *Hub) Broadcast(channel string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.log.WithFields(logrus.Fields{"user_id": c.userID, "channel": channel}).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
	return delivered
}

// ClientCount returns the number of clients attached to channel.
func (h *Hub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
