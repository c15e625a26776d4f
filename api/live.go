package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/warp/parking-engine/engine"
)

// =============================================================================
// LIVE AVAILABILITY FEED
// =============================================================================

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 5 * time.Second

// LiveEvent is pushed to every connected client when a slot changes hands.
type LiveEvent struct {
	Type          string       `json:"type"` // slot_occupied, slot_released
	SlotID        string       `json:"slot_id"`
	ReservationID string       `json:"reservation_id"`
	UserID        string       `json:"user_id,omitempty"`
	Available     bool         `json:"available"`
	Amount        engine.Money `json:"amount"`
	At            time.Time    `json:"at"`
}

// Hub fans committed reservation events out to websocket clients.
// The Run loop owns every connection; it is the only writer.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then closes every client.
func (hub *Hub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case conn := <-hub.register:
			hub.mu.Lock()
			hub.clients[conn] = true
			n := len(hub.clients)
			hub.mu.Unlock()
			log.Printf("[Live] Client connected. Total: %d", n)

		case conn := <-hub.unregister:
			hub.drop(conn)

		case msg := <-hub.broadcast:
			hub.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(hub.clients))
			for conn := range hub.clients {
				conns = append(conns, conn)
			}
			hub.mu.RUnlock()

			for _, conn := range conns {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Printf("[Live] Write failed, dropping client: %v", err)
					hub.drop(conn)
				}
			}

		case <-ctx.Done():
			hub.mu.Lock()
			for conn := range hub.clients {
				conn.Close()
				delete(hub.clients, conn)
			}
			hub.mu.Unlock()
			return
		}
	}
}

func (hub *Hub) drop(conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if _, ok := hub.clients[conn]; ok {
		delete(hub.clients, conn)
		conn.Close()
		log.Printf("[Live] Client disconnected. Total: %d", len(hub.clients))
	}
}

// Clients returns the number of connected clients.
func (hub *Hub) Clients() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

// Observe implements engine.Observer. Only committed changes are published.
func (hub *Hub) Observe(_ context.Context, ev engine.Event) {
	var msg LiveEvent
	switch ev.Kind {
	case engine.EventReserved:
		msg = LiveEvent{Type: "slot_occupied", Available: false, At: ev.Reservation.StartTime}
	case engine.EventEnded:
		msg = LiveEvent{Type: "slot_released", Available: true}
		if ev.Reservation.EndTime != nil {
			msg.At = *ev.Reservation.EndTime
		}
	default:
		return
	}
	msg.SlotID = string(ev.Reservation.SlotID)
	msg.ReservationID = string(ev.Reservation.ID)
	msg.UserID = string(ev.Reservation.UserID)
	msg.Amount = ev.Reservation.TotalAmount
	hub.Publish(msg)
}

// Publish queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (hub *Hub) Publish(msg LiveEvent) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Live] Failed to encode event: %v", err)
		return
	}
	select {
	case hub.broadcast <- payload:
	default:
		log.Println("[Live] Broadcast queue full, dropping event")
	}
}

// ServeWS upgrades the request and keeps reading until the client leaves.
// GET /api/live
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Live] Upgrade failed: %v", err)
		return
	}

	select {
	case hub.register <- conn:
	case <-hub.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[Live] Read error: %v", err)
				}
				return
			}
		}
	}()
}
