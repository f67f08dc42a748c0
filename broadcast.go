package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const wsWriteWait = 10 * time.Second

// wsClient is one downstream map client. The hub only ever touches the send
// channel; the pumps own the connection.
type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// Hub tracks connected subscribers and fans snapshot and delta messages out
// to them. A single run goroutine owns the client set, so no mutation of it
// ever races with a broadcast.
//
// Delivery is deliberately lossy: a subscriber whose send buffer is full is
// dropped rather than queued against, since every client resynchronizes
// from a fresh snapshot on reconnect.
type Hub struct {
	cfg    *Config
	store  *Store
	static *staticData

	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	deltas     chan wsMessage
}

func newHub(cfg *Config, store *Store, static *staticData) *Hub {
	return &Hub{
		cfg:        cfg,
		store:      store,
		static:     static,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		deltas:     make(chan wsMessage, 16),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			logf(h.cfg, "WS: Client connected (%d total)", len(h.clients))

			for _, msg := range h.snapshotSequence() {
				if !h.trySend(c, msg) {
					break
				}
			}

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				logf(h.cfg, "WS: Client disconnected (%d total)", len(h.clients))
			}

		case msg := <-h.deltas:
			for c := range h.clients {
				h.trySend(c, msg)
			}

		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// trySend queues a message without blocking the hub loop. A client that
// cannot keep up is dropped on the spot.
func (h *Hub) trySend(c *wsClient, msg wsMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		delete(h.clients, c)
		close(c.send)
		logf(h.cfg, "WS: Dropped slow client (%d total)", len(h.clients))
		return false
	}
}

// snapshotSequence builds the ordered snapshot a fresh subscriber receives.
// Empty live collections are skipped, matching the pre-pull startup window;
// the static payloads always go out.
func (h *Hub) snapshotSequence() []wsMessage {
	msgs := make([]wsMessage, 0, 5)
	if cities := h.store.Cities(); len(cities) > 0 {
		msgs = append(msgs, wsMessage{Type: msgInitialCities, Payload: cities})
	}
	if nations := h.store.Nations(); len(nations) > 0 {
		msgs = append(msgs, wsMessage{Type: msgInitialNations, Payload: nations})
	}
	if unions := h.store.Unions(); len(unions) > 0 {
		msgs = append(msgs, wsMessage{Type: msgInitialUnions, Payload: unions})
	}
	msgs = append(msgs,
		wsMessage{Type: msgInitialPaths, Payload: h.static.paths},
		wsMessage{Type: msgInitialCityDetails, Payload: h.static.cityDetails},
	)
	return msgs
}

// broadcast hands a message to the hub loop for fan-out.
func (h *Hub) broadcast(msg wsMessage) {
	h.deltas <- msg
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades a map client connection and hands it to the hub.
func serveWS(cfg *Config, hub *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errorf("WS: upgrade failed: %v", err)
			return
		}

		client := &wsClient{
			conn: conn,
			send: make(chan wsMessage, 32),
		}

		hub.register <- client

		go client.writePump()
		client.readPump(cfg, hub)
	}
}

// readPump drains inbound messages until the client goes away. Map clients
// have nothing to say; whatever arrives is logged and discarded.
func (c *wsClient) readPump(cfg *Config, hub *Hub) {
	defer func() {
		hub.unregister <- c
		_ = c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		logf(cfg, "WS: Ignoring message from client: %s", data)
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
