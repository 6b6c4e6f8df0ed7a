package database

import (
	"context"

	"journey-app/internal/models"
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type JourneyRepository interface {
	CreateJourney(ctx context.Context, code string, leaderID int, destination *models.GeoPoint) (*models.Journey, error)
	GetJourneyByCode(ctx context.Context, code string) (*models.Journey, error)
	GetJourneyByID(ctx context.Context, id int) (*models.Journey, error)
	AddMember(ctx context.Context, journeyID, userID int) error
	SetDestination(ctx context.Context, journeyID int, destination *models.GeoPoint) (*models.Journey, error)
	GetParticipants(ctx context.Context, journeyID int) ([]models.Participant, error)
}

type LocationRepository interface {
	SaveLocationUpdate(ctx context.Context, journeyID, userID int, longitude, latitude float64) error
}

type Database interface {
	UserRepository
	JourneyRepository
	LocationRepository
	Close() error
}
