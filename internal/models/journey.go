package models

import "time"

const (
	JourneyStatusActive    = "active"
	JourneyStatusCompleted = "completed"
)

// GeoPoint is a GeoJSON-style point: coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type" validate:"required,eq=Point"`
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
}

func (p *GeoPoint) Longitude() float64 { return p.Coordinates[0] }
func (p *GeoPoint) Latitude() float64  { return p.Coordinates[1] }

// Journey is a shared trip session. The leader is the creating user and the
// only identity allowed to change the destination. Members grow
// monotonically; a disconnect never removes one.
type Journey struct {
	ID          int       `json:"id"`
	Code        string    `json:"code"`
	LeaderID    int       `json:"leader_id"`
	Members     []int     `json:"members"`
	Destination *GeoPoint `json:"destination,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Participant is a user as seen inside a journey, leader first in listings.
type Participant struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// LocationUpdate is one append-only position sample. Rows are never mutated.
type LocationUpdate struct {
	ID        int       `json:"id"`
	JourneyID int       `json:"journey_id"`
	UserID    int       `json:"user_id"`
	Longitude float64   `json:"longitude" validate:"longitude"`
	Latitude  float64   `json:"latitude" validate:"latitude"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateJourneyRequest struct {
	Destination *GeoPoint `json:"destination" validate:"required"`
}

type UpdateDestinationRequest struct {
	Destination *GeoPoint `json:"destination" validate:"required"`
}
