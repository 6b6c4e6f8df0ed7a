package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"journey-app/internal/database"
	"journey-app/internal/models"

	"github.com/go-playground/validator/v10"
)

const (
	codeLength      = 6
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 5
	maxAbsLongitude = 180
	maxAbsLatitude  = 90
)

// JourneyService is the session registry: it creates sessions, resolves
// join-by-code and enforces leader-only destination mutation. It never
// broadcasts; propagation is the caller's job.
type JourneyService struct {
	db       database.Database
	validate *validator.Validate
}

func NewJourneyService(db database.Database) *JourneyService {
	return &JourneyService{
		db:       db,
		validate: validator.New(),
	}
}

func (s *JourneyService) Create(ctx context.Context, leaderID int, destination *models.GeoPoint) (*models.Journey, error) {
	if err := s.validateDestination(destination); err != nil {
		return nil, err
	}

	// Code collisions are near-impossible at this scale but must be
	// retried, not accepted.
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode(codeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate journey code: %w", err)
		}

		journey, err := s.db.CreateJourney(ctx, code, leaderID, destination)
		if errors.Is(err, database.ErrCodeConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return journey, nil
	}

	return nil, fmt.Errorf("failed to allocate a unique journey code")
}

// JoinByCode adds the user to the member set if absent. Repeated joins are
// no-ops, not errors; the returned session carries the current member list.
func (s *JourneyService) JoinByCode(ctx context.Context, code string, userID int) (*models.Journey, error) {
	journey, err := s.db.GetJourneyByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.db.AddMember(ctx, journey.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to join journey: %w", err)
	}

	return s.db.GetJourneyByCode(ctx, code)
}

func (s *JourneyService) GetByCode(ctx context.Context, code string) (*models.Journey, error) {
	return s.db.GetJourneyByCode(ctx, code)
}

func (s *JourneyService) UpdateDestination(ctx context.Context, journeyID, requesterID int, destination *models.GeoPoint) (*models.Journey, error) {
	if err := s.validateDestination(destination); err != nil {
		return nil, err
	}

	journey, err := s.db.GetJourneyByID(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	if journey.LeaderID != requesterID {
		return nil, fmt.Errorf("%w: only the group leader can update the destination", models.ErrForbidden)
	}

	return s.db.SetDestination(ctx, journeyID, destination)
}

// Participants returns the leader first, then members.
func (s *JourneyService) Participants(ctx context.Context, journeyID int) ([]models.Participant, error) {
	return s.db.GetParticipants(ctx, journeyID)
}

func (s *JourneyService) validateDestination(destination *models.GeoPoint) error {
	if destination == nil {
		return fmt.Errorf("%w: destination is required", models.ErrValidation)
	}

	if err := s.validate.Struct(destination); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	lng, lat := destination.Longitude(), destination.Latitude()
	if lng < -maxAbsLongitude || lng > maxAbsLongitude || lat < -maxAbsLatitude || lat > maxAbsLatitude {
		return fmt.Errorf("%w: coordinates out of range", models.ErrValidation)
	}

	return nil
}

func generateCode(length int) (string, error) {
	// Bytes at or above the largest multiple of the alphabet size are
	// rejected; taking them modulo 36 would skew the distribution.
	limit := byte(256 - 256%len(codeAlphabet))

	code := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == length {
				break
			}
		}
	}
	return string(code), nil
}
