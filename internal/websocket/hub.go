package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"journey-app/internal/metrics"
	"journey-app/internal/models"
	"journey-app/pkg/logger"

	"github.com/goccy/go-json"
)

// broadcastMsg is one fan-out unit. exclude lets join/leave notices skip the
// originating connection; location updates leave it nil so the sender hears
// its own echo.
type broadcastMsg struct {
	event   string
	data    []byte
	exclude *Conn
}

// Hub is the broadcast scope for a single journey room. One hub exists per
// journey code while anyone is connected to it. The run loop serializes
// registration and fan-out, which preserves server-side broadcast order.
type Hub struct {
	code         string
	clients      map[*Conn]bool
	Register     chan *Conn
	Unregister   chan *Conn
	Broadcast    chan broadcastMsg
	shutdown     chan struct{}
	clientCount  atomic.Int32
	lastActivity atomic.Int64
}

func NewHub(code string) *Hub {
	h := &Hub{
		code:       code,
		clients:    make(map[*Conn]bool),
		Register:   make(chan *Conn),
		Unregister: make(chan *Conn),
		Broadcast:  make(chan broadcastMsg, 64),
		shutdown:   make(chan struct{}),
	}
	h.lastActivity.Store(time.Now().UnixNano())
	return h
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			return

		case conn := <-h.Register:
			h.clients[conn] = true
			h.clientCount.Store(int32(len(h.clients)))
			h.lastActivity.Store(time.Now().UnixNano())
			logger.Info("User %s joined journey %s", conn.user.Username, h.code)

		case conn := <-h.Unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				h.clientCount.Store(int32(len(h.clients)))
				logger.Info("User %s left journey %s", conn.user.Username, h.code)
			}

		case msg := <-h.Broadcast:
			h.lastActivity.Store(time.Now().UnixNano())
			h.broadcastToAll(msg)
		}
	}
}

// broadcastToAll fans out to every current room member. A recipient whose
// send buffer is full gets this message dropped; one slow connection must
// not stall the rest of the room.
func (h *Hub) broadcastToAll(msg broadcastMsg) {
	metrics.RoomBroadcasts.WithLabelValues(msg.event).Inc()
	for conn := range h.clients {
		if conn == msg.exclude {
			continue
		}
		select {
		case conn.send <- msg.data:
		default:
			logger.Error("Dropping %s for %s in journey %s: send buffer full",
				msg.event, conn.user.Username, h.code)
		}
	}
}

func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

func (h *Hub) Shutdown() {
	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
}

// Manager owns the connection-to-room state. No other component reads or
// mutates room membership directly.
type Manager struct {
	hubs  map[string]*Hub
	mutex sync.Mutex
}

func NewManager() *Manager {
	manager := &Manager{
		hubs: make(map[string]*Hub),
	}

	go manager.cleanupUnusedHubs()
	return manager
}

// HubForJourney returns the room's hub, starting one if needed. The activity
// stamp is refreshed under the lock so a hub handed to a caller cannot be
// reaped as idle before the caller registers with it.
func (m *Manager) HubForJourney(code string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[code]
	if !exists {
		hub = NewHub(code)
		m.hubs[code] = hub
		go hub.Run()
	}
	hub.lastActivity.Store(time.Now().UnixNano())
	return hub
}

func (m *Manager) lookup(code string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.hubs[code]
}

// Send broadcasts a named event to every connection currently in the room.
// It is the session messaging channel: no persistence, no acknowledgment,
// no backlog for rooms nobody is connected to.
func (m *Manager) Send(code, event string, data interface{}) error {
	hub := m.lookup(code)
	if hub == nil {
		return nil
	}

	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	hub.Broadcast <- broadcastMsg{event: event, data: raw}
	return nil
}

func (m *Manager) cleanupUnusedHubs() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		m.reapIdleHubs(30 * time.Minute)
	}
}

func (m *Manager) reapIdleHubs(maxIdle time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for code, hub := range m.hubs {
		idle := time.Since(time.Unix(0, hub.lastActivity.Load()))
		if hub.ClientCount() == 0 && idle > maxIdle {
			hub.Shutdown()
			delete(m.hubs, code)
			logger.Debug("Cleaned up unused hub for journey %s", code)
		}
	}
}
