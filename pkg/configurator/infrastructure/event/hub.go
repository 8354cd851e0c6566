package event

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
)

const (
	clientBuffer = 256
	writeTimeout = 10 * time.Second
)

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	// kind filters events; empty receives all of them.
	kind   model.OperationKind
	events chan model.Event
}

// Hub streams events to websocket clients. A client that falls behind is disconnected.
type Hub struct {
	logger   applogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
}

// NewHub accepts connections for which checkOrigin holds. A nil checkOrigin
// accepts same-origin requests only.
func NewHub(logger applogger.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[uuid.UUID]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
	}
}

func (hub *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error(err, "failed to upgrade connection")
		return
	}
	c := &client{
		id:     uuid.New(),
		conn:   conn,
		kind:   model.OperationKind(r.URL.Query().Get("kind")),
		events: make(chan model.Event, clientBuffer),
	}

	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		_ = conn.Close()
		return
	}
	hub.clients[c.id] = c
	hub.mu.Unlock()

	go hub.write(c)
	hub.read(c)
}

func (hub *Hub) Publish(event model.Event) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for id, c := range hub.clients {
		if c.kind != "" && c.kind != event.Kind {
			continue
		}
		select {
		case c.events <- event:
		default:
			hub.logger.Info("websocket client " + id.String() + " is too slow, disconnecting")
			hub.remove(c)
		}
	}
}

func (hub *Hub) Clients() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// Close disconnects every client and rejects new ones.
func (hub *Hub) Close() {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.closed = true
	for _, c := range hub.clients {
		hub.remove(c)
	}
}

// read keeps the connection alive until the peer goes away.
func (hub *Hub) read(c *client) {
	defer func() {
		hub.mu.Lock()
		hub.remove(c)
		hub.mu.Unlock()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.logger.Error(err, "websocket client "+c.id.String()+" failed")
			}
			return
		}
	}
}

func (hub *Hub) write(c *client) {
	defer c.conn.Close()
	for event := range c.events {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			hub.logger.Error(err, "failed to send event to websocket client "+c.id.String())
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// remove must be called with hub.mu held.
func (hub *Hub) remove(c *client) {
	if _, ok := hub.clients[c.id]; !ok {
		return
	}
	delete(hub.clients, c.id)
	close(c.events)
}
