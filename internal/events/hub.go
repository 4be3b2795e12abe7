package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Hub pushes events to the websocket clients of the live display. New
// clients first receive the buffered history of the current cycle.
type Hub struct {
	clients   map[*websocket.Conn]*sync.Mutex // each connection has its own write mutex
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	history   *Buffer
}

// NewHub returns a hub replaying history to new clients. history may be nil.
func NewHub(history *Buffer, allowedOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Hub{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    1024,
			WriteBufferSize:   1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin] || origins["*"]
			},
		},
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	writeMu := &sync.Mutex{}

	// live broadcasts wait until the replay is done so nothing is lost in between;
	// an event may arrive twice, clients dedupe on id
	h.clientsMu.Lock()
	if h.history != nil {
		for _, e := range h.history.Recent(0) {
			if err := h.write(conn, writeMu, e); err != nil {
				h.clientsMu.Unlock()
				conn.Close()
				return
			}
		}
	}
	h.clients[conn] = writeMu
	count := len(h.clients)
	h.clientsMu.Unlock()

	log.Info().Str("remote_ip", r.RemoteAddr).Int("clients", count).Msg("Display client connected")

	defer func() {
		h.remove(conn)
		log.Info().Str("remote_ip", r.RemoteAddr).Msg("Display client disconnected")
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// the display never sends anything we act on; reading drives pong handling
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

// Publish broadcasts e to every connected client
func (h *Hub) Publish(e Event) {
	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mus := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mu := range h.clients {
		conns = append(conns, conn)
		mus = append(mus, mu)
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for i, conn := range conns {
		if err := h.write(conn, mus[i], e); err != nil {
			log.Debug().Err(err).Msg("Failed to send event to display client")
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		h.remove(conn)
	}
}

func (h *Hub) write(conn *websocket.Conn, mu *sync.Mutex, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.clientsMu.Unlock()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn, mu := range h.clients {
		mu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		mu.Unlock()
		conn.Close()
		delete(h.clients, conn)
	}
}
