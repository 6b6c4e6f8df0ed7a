package reconciler

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"journey-app/internal/models"
	"journey-app/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Gateway is the reconciler's handle on the realtime channel. It is injected
// rather than reached through a shared singleton so tests can substitute a
// double and callers own the connection lifecycle.
type Gateway interface {
	JoinJourney(code string) error
	SendLocationUpdate(code string, latitude, longitude float64) error
	SendMessage(code, messageType string, data interface{}) error
	Events() <-chan models.Envelope
	Close() error
}

// WSGateway talks to the connection gateway over a websocket.
type WSGateway struct {
	conn      *websocket.Conn
	events    chan models.Envelope
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects and authenticates with the bearer token. A rejected
// handshake surfaces here, before any room operation is possible.
func Dial(ctx context.Context, baseURL, token string) (*WSGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gateway handshake failed: %w", err)
	}

	g := &WSGateway{
		conn:   conn,
		events: make(chan models.Envelope, 64),
	}
	go g.readLoop()

	return g, nil
}

func (g *WSGateway) readLoop() {
	defer close(g.events)

	for {
		_, message, err := g.conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope models.Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			logger.Error("Malformed gateway event: %v", err)
			continue
		}

		select {
		case g.events <- envelope:
		default:
			logger.Error("Dropping gateway event %s: consumer too slow", envelope.Event)
		}
	}
}

func (g *WSGateway) Events() <-chan models.Envelope {
	return g.events
}

func (g *WSGateway) JoinJourney(code string) error {
	return g.send(models.EventJoinJourney, models.JoinJourneyPayload{Code: code})
}

func (g *WSGateway) SendLocationUpdate(code string, latitude, longitude float64) error {
	return g.send(models.EventLocationUpdate, models.LocationUpdatePayload{
		JourneyCode: code,
		Latitude:    latitude,
		Longitude:   longitude,
	})
}

func (g *WSGateway) SendMessage(code, messageType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return g.send(models.EventJourneyMessage, models.JourneyMessagePayload{
		JourneyCode: code,
		MessageType: messageType,
		Data:        raw,
	})
}

func (g *WSGateway) send(event string, data interface{}) error {
	envelope, err := models.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.conn.WriteMessage(websocket.TextMessage, raw)
}

func (g *WSGateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.conn.Close()
	})
	return err
}
