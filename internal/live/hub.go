package live

import (
	"log"
	"net/http"
	"sync"
	"time"

	"gate-backend/internal/metrics"
	"gate-backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	bufferSize = 64
)

// Event is pushed to dashboard clients for every new gate entry.
type Event struct {
	Type          string              `json:"type"`
	GateEntryNo   string              `json:"gate_entry_no"`
	VehicleNo     string              `json:"vehicle_no"`
	MovementType  models.MovementType `json:"movement_type"`
	WarehouseCode string              `json:"warehouse_code"`
	Rows          int                 `json:"rows"`
	CreatedAt     time.Time           `json:"created_at"`
}

type client struct {
	conn          *websocket.Conn
	warehouseCode string
}

// Hub fans gate entry events out to connected websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]*client
	clientsMux sync.Mutex
	broadcast  chan Event
	upgrader   websocket.Upgrader
}

func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan Event, bufferSize),
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Run delivers queued events until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case ev := <-h.broadcast:
			h.deliver(ev)
		case <-stop:
			h.closeAll()
			return
		}
	}
}

// MovementCreated queues an event. It never blocks the request; when the
// buffer is full the event is dropped.
func (h *Hub) MovementCreated(result *models.CreateMovementResult) {
	if result == nil || len(result.Records) == 0 {
		return
	}
	ev := Event{
		Type:          "gate_movement",
		GateEntryNo:   result.GateEntryNo,
		VehicleNo:     result.VehicleNo,
		MovementType:  result.MovementType,
		WarehouseCode: result.Records[0].WarehouseCode,
		Rows:          len(result.Records),
		CreatedAt:     result.CreatedAt,
	}
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("[Live] Dropping event for %s, buffer full", ev.GateEntryNo)
	}
}

// Serve upgrades the request. warehouseCode limits the events the client
// receives; empty means every warehouse.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, warehouseCode string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[Live] WebSocket upgrade error:", err)
		return
	}

	h.clientsMux.Lock()
	h.clients[conn] = &client{conn: conn, warehouseCode: warehouseCode}
	metrics.LiveClients.Set(float64(len(h.clients)))
	h.clientsMux.Unlock()

	// Reads only detect the close; clients never send anything useful.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
		metrics.LiveClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) deliver(ev Event) {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for conn, c := range h.clients {
		if c.warehouseCode != "" && c.warehouseCode != ev.WarehouseCode {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
	metrics.LiveClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	metrics.LiveClients.Set(0)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMux.Lock()
	defer h.clientsMux.Unlock()
	return len(h.clients)
}
