package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// Event is pushed to websocket subscribers whenever a pool snapshot changes.
type Event struct {
	PoolID   string          `json:"pool_id"`
	Alias    string          `json:"alias"`
	Snapshot *model.Snapshot `json:"snapshot"`
	Time     time.Time       `json:"time"`
}

type subscriber struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans snapshot changes out to websocket subscribers. Subscribers that
// fall behind are disconnected.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		subscribers: map[*subscriber]struct{}{},
	}
}

// Publish has the coordinator listener signature.
func (h *Hub) Publish(pool model.Pool, snap *model.Snapshot) {
	h.broadcast(Event{PoolID: pool.ID, Alias: pool.Alias, Snapshot: snap, Time: time.Now()})
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		select {
		case s.send <- ev:
		default:
			log.Warn().Str("remote", s.conn.RemoteAddr().String()).Msg("Dropping slow event subscriber")
			h.removeLocked(s)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Serve upgrades the request and streams events until the peer goes away.
// initial is queued before any later event.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial []Event) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s := &subscriber{conn: conn, send: make(chan Event, sendBuffer+len(initial))}
	for _, ev := range initial {
		s.send <- ev
	}

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Event subscriber connected")

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop discards client messages and notices disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(ev); err != nil {
				h.remove(s)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout)); err != nil {
				h.remove(s)
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.send)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subscribers {
		h.removeLocked(s)
	}
}
