package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/signalsfoundry/cargo-rover-sim/internal/logging"
)

type client struct {
	id   string
	send chan []byte
}

// Hub streams telemetry records to websocket subscribers such as the
// external map visualiser. Slow clients miss records rather than slowing
// the hub down.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	// done is closed when Run returns; nothing drains register or
	// unregister after that.
	done chan struct{}

	clientBuffer int
	log          logging.Logger
}

// NewHub constructs a hub. Call Run before serving connections.
func NewHub(clientBuffer int, log logging.Logger) *Hub {
	if clientBuffer < 1 {
		clientBuffer = 32
	}
	return &Hub{
		clients:      make(map[*client]struct{}),
		register:     make(chan *client, 16),
		unregister:   make(chan *client, 16),
		broadcast:    make(chan []byte, 256),
		done:         make(chan struct{}),
		clientBuffer: clientBuffer,
		log:          logging.Component(log, "telemetry_hub"),
	}
}

// Run services registrations and fan-out until ctx is done. Call it once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			last := h.last
			h.mu.Unlock()
			if last != nil {
				select {
				case c.send <- last:
				default:
				}
			}
			h.log.Debug(ctx, "client registered", logging.String("client_id", c.id), logging.Int("total", h.ClientCount()))

		case c := <-h.unregister:
			h.removeClient(ctx, c)

		case msg := <-h.broadcast:
			h.fanout(ctx, msg)
		}
	}
}

func (h *Hub) Name() string { return "websocket" }

// Write queues r for every connected client. It never blocks.
func (h *Hub) Write(ctx context.Context, r Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn(ctx, "broadcast channel full, dropping record")
	}
	return nil
}

func (h *Hub) Close() error { return nil }

// ClientCount reports connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams records until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Error(r.Context(), "websocket accept failed", logging.Err(err))
		return
	}

	c := &client{id: uuid.NewString(), send: make(chan []byte, h.clientBuffer)}
	if !h.join(c) {
		conn.Close(websocket.StatusGoingAway, "telemetry hub stopped")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, c)
	h.readLoop(ctx, conn, c)
}

// join hands c to Run. It reports false once the hub has stopped.
func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave hands c back to Run. After Run has returned the client was already
// closed by closeAllClients.
func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readLoop only detects disconnects; clients have nothing to say.
func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	defer func() {
		h.leave(c)
		conn.Close(websocket.StatusNormalClosure, "")
	}()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.log.Debug(ctx, "websocket read error", logging.String("client_id", c.id), logging.Err(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) fanout(ctx context.Context, msg []byte) {
	h.mu.Lock()
	h.last = msg
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug(ctx, "client send buffer full", logging.String("client_id", c.id))
		}
	}
}

func (h *Hub) removeClient(ctx context.Context, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Debug(ctx, "client unregistered", logging.String("client_id", c.id), logging.Int("total", len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(map[*client]struct{})
}
