package websocket

import (
	"context"
	"fmt"
	"time"

	"journey-app/internal/metrics"
	"journey-app/internal/models"
	"journey-app/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionRegistry is the slice of the journey service the gateway needs.
type SessionRegistry interface {
	GetByCode(ctx context.Context, code string) (*models.Journey, error)
	Participants(ctx context.Context, journeyID int) ([]models.Participant, error)
}

// LocationStore persists accepted location samples.
type LocationStore interface {
	SaveLocationUpdate(ctx context.Context, journeyID, userID int, longitude, latitude float64) error
}

// Conn is the connection-scoped context: the authenticated identity plus at
// most one current journey room. Event handlers receive their state through
// it; nothing hangs off the raw websocket connection. Handlers run one at a
// time on the read loop, so currentCode/currentHub need no locking.
type Conn struct {
	manager   *Manager
	ws        *websocket.Conn
	send      chan []byte
	user      models.User
	sessionID string
	registry  SessionRegistry
	locations LocationStore

	currentCode string
	currentHub  *Hub
}

func NewConn(manager *Manager, ws *websocket.Conn, user models.User, registry SessionRegistry, locations LocationStore) *Conn {
	metrics.ActiveConnections.Inc()
	return &Conn{
		manager:   manager,
		ws:        ws,
		send:      make(chan []byte, 256),
		user:      user,
		sessionID: uuid.NewString(),
		registry:  registry,
		locations: locations,
	}
}

func (c *Conn) ReadPump() {
	defer func() {
		c.leaveCurrentRoom(true)
		metrics.ActiveConnections.Dec()
		close(c.send)
		c.ws.Close()
		logger.Debug("Connection %s closed for %s", c.sessionID, c.user.Username)
	}()

	c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for %s: %v", c.user.Username, err)
			}
			break
		}

		var envelope models.Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			c.sendError("Malformed message")
			continue
		}

		ctx := context.Background()
		switch envelope.Event {
		case models.EventJoinJourney:
			c.handleJoinJourney(ctx, envelope.Data)
		case models.EventLocationUpdate:
			c.handleLocationUpdate(ctx, envelope.Data)
		case models.EventJourneyMessage:
			c.handleJourneyMessage(envelope.Data)
		default:
			c.sendError(fmt.Sprintf("Unknown event %q", envelope.Event))
		}
	}
}

func (c *Conn) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error for %s: %v", c.user.Username, err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleJoinJourney associates the connection with the room named by the
// code. A second join supersedes the first: the connection leaves the old
// room's broadcast set before entering the new one.
func (c *Conn) handleJoinJourney(ctx context.Context, raw json.RawMessage) {
	code, err := parseJoinCode(raw)
	if err != nil {
		c.sendError("Malformed join request")
		return
	}

	journey, err := c.registry.GetByCode(ctx, code)
	if err != nil {
		c.sendError("Journey not found")
		return
	}

	participants, err := c.registry.Participants(ctx, journey.ID)
	if err != nil {
		logger.Error("Error loading participants for journey %s: %v", code, err)
		c.sendError("Failed to join journey")
		return
	}

	c.leaveCurrentRoom(false)

	hub := c.manager.HubForJourney(code)
	hub.Register <- c
	c.currentHub = hub
	c.currentCode = code

	c.enqueue(models.EventJourneyJoined, models.JourneyJoinedPayload{
		Journey:      journey,
		Participants: participants,
	})

	c.broadcastToOthers(models.EventUserJoined, models.UserEventPayload{
		User:    models.Participant{ID: c.user.ID, Username: c.user.Username, Role: c.user.Role},
		Message: fmt.Sprintf("%s joined the journey", c.user.Username),
	})
}

// handleLocationUpdate persists the sample and fans it out to the whole
// room, sender included. A failed write is logged and counted; live
// coordination matters more than the audit trail.
func (c *Conn) handleLocationUpdate(ctx context.Context, raw json.RawMessage) {
	var payload models.LocationUpdatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("Malformed location update")
		return
	}

	if c.currentCode == "" || c.currentCode != payload.JourneyCode {
		c.sendError("Not in this journey")
		return
	}

	journey, err := c.registry.GetByCode(ctx, payload.JourneyCode)
	if err != nil {
		c.sendError("Journey not found")
		return
	}

	if err := c.locations.SaveLocationUpdate(ctx, journey.ID, c.user.ID, payload.Longitude, payload.Latitude); err != nil {
		logger.Error("Error saving location update from %s: %v", c.user.Username, err)
		metrics.PersistenceFailures.Inc()
	}

	metrics.LocationUpdates.Inc()
	c.broadcastToRoom(models.EventLocationUpdate, models.LocationBroadcast{
		UserID:    c.user.ID,
		Username:  c.user.Username,
		Role:      c.user.Role,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Timestamp: time.Now().UTC(),
	})
}

// handleJourneyMessage re-emits an arbitrary typed payload to the room
// under journey-message-{type}. Used for destination change notices.
func (c *Conn) handleJourneyMessage(raw json.RawMessage) {
	var payload models.JourneyMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("Malformed journey message")
		return
	}

	if c.currentCode == "" || c.currentCode != payload.JourneyCode {
		c.sendError("Not authorized for this journey")
		return
	}

	event := models.EventJourneyMessage + "-" + payload.MessageType
	data, err := json.Marshal(models.Envelope{Event: event, Data: payload.Data})
	if err != nil {
		c.sendError("Failed to send message")
		return
	}

	c.currentHub.Broadcast <- broadcastMsg{event: event, data: data}
}

func (c *Conn) leaveCurrentRoom(notify bool) {
	if c.currentHub == nil {
		return
	}

	if notify {
		c.broadcastToOthers(models.EventUserLeft, models.UserEventPayload{
			User:    models.Participant{ID: c.user.ID, Username: c.user.Username, Role: c.user.Role},
			Message: fmt.Sprintf("%s left the journey", c.user.Username),
		})
	}

	c.currentHub.Unregister <- c
	c.currentHub = nil
	c.currentCode = ""
}

func (c *Conn) broadcastToRoom(event string, data interface{}) {
	c.broadcast(event, data, nil)
}

func (c *Conn) broadcastToOthers(event string, data interface{}) {
	c.broadcast(event, data, c)
}

func (c *Conn) broadcast(event string, data interface{}, exclude *Conn) {
	if c.currentHub == nil {
		return
	}

	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		logger.Error("Error marshaling %s broadcast: %v", event, err)
		return
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		logger.Error("Error marshaling %s broadcast: %v", event, err)
		return
	}

	c.currentHub.Broadcast <- broadcastMsg{event: event, data: raw, exclude: exclude}
}

func (c *Conn) enqueue(event string, data interface{}) {
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		logger.Error("Error marshaling %s reply: %v", event, err)
		return
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return
	}

	select {
	case c.send <- raw:
	default:
		logger.Error("Dropping %s for %s: send buffer full", event, c.user.Username)
	}
}

func (c *Conn) sendError(message string) {
	c.enqueue(models.EventError, message)
}

// parseJoinCode accepts both a bare string code and a {code} object.
func parseJoinCode(raw json.RawMessage) (string, error) {
	var code string
	if err := json.Unmarshal(raw, &code); err == nil && code != "" {
		return code, nil
	}

	var payload models.JoinJourneyPayload
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Code != "" {
		return payload.Code, nil
	}

	return "", fmt.Errorf("missing journey code")
}
