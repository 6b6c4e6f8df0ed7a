package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Gateway event names. Client-to-server events are dispatched by the
// connection read loop; server-to-client events are fanned out per room.
const (
	EventJoinJourney    = "join-journey"
	EventJourneyJoined  = "journey-joined"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventLocationUpdate = "location-update"
	EventJourneyMessage = "journey-message"
	EventError          = "error"

	// journey-message payloads are re-emitted under
	// "journey-message-{type}"; destination changes use this type.
	MessageTypeDestinationUpdated = "destination_updated"
)

// Envelope frames every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type JoinJourneyPayload struct {
	Code string `json:"code"`
}

type JourneyJoinedPayload struct {
	Journey      *Journey      `json:"journey"`
	Participants []Participant `json:"participants"`
}

type UserEventPayload struct {
	User    Participant `json:"user"`
	Message string      `json:"message"`
}

type LocationUpdatePayload struct {
	JourneyCode string  `json:"journeyCode"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type LocationBroadcast struct {
	UserID    int       `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type JourneyMessagePayload struct {
	JourneyCode string          `json:"journeyCode"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// DestinationUpdated is the payload carried under
// journey-message-destination_updated.
type DestinationUpdated struct {
	Destination *GeoPoint `json:"destination"`
	UpdatedBy   string    `json:"updatedBy"`
}
