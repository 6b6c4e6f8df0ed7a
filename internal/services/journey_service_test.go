package services

import (
	"context"
	"errors"
	"testing"

	"journey-app/internal/database"
	"journey-app/internal/models"
)

// fakeDB is an in-memory stand-in for the Postgres store.
type fakeDB struct {
	nextID    int
	journeys  map[int]*models.Journey
	byCode    map[string]int
	members   map[int][]int
	conflicts int
	creates   int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		journeys: make(map[int]*models.Journey),
		byCode:   make(map[string]int),
		members:  make(map[int][]int),
	}
}

func (f *fakeDB) CreateJourney(_ context.Context, code string, leaderID int, destination *models.GeoPoint) (*models.Journey, error) {
	f.creates++
	if f.conflicts > 0 {
		f.conflicts--
		return nil, database.ErrCodeConflict
	}
	if _, exists := f.byCode[code]; exists {
		return nil, database.ErrCodeConflict
	}

	f.nextID++
	journey := &models.Journey{
		ID:          f.nextID,
		Code:        code,
		LeaderID:    leaderID,
		Members:     []int{},
		Destination: destination,
		Status:      models.JourneyStatusActive,
	}
	f.journeys[journey.ID] = journey
	f.byCode[code] = journey.ID
	return journey, nil
}

func (f *fakeDB) GetJourneyByCode(_ context.Context, code string) (*models.Journey, error) {
	id, ok := f.byCode[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	return f.snapshot(id), nil
}

func (f *fakeDB) GetJourneyByID(_ context.Context, id int) (*models.Journey, error) {
	if _, ok := f.journeys[id]; !ok {
		return nil, models.ErrNotFound
	}
	return f.snapshot(id), nil
}

func (f *fakeDB) snapshot(id int) *models.Journey {
	stored := f.journeys[id]
	copied := *stored
	copied.Members = append([]int{}, f.members[id]...)
	return &copied
}

func (f *fakeDB) AddMember(_ context.Context, journeyID, userID int) error {
	for _, id := range f.members[journeyID] {
		if id == userID {
			return nil
		}
	}
	f.members[journeyID] = append(f.members[journeyID], userID)
	return nil
}

func (f *fakeDB) SetDestination(_ context.Context, journeyID int, destination *models.GeoPoint) (*models.Journey, error) {
	journey, ok := f.journeys[journeyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	journey.Destination = destination
	return f.snapshot(journeyID), nil
}

func (f *fakeDB) GetParticipants(_ context.Context, journeyID int) ([]models.Participant, error) {
	journey, ok := f.journeys[journeyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	participants := []models.Participant{{ID: journey.LeaderID, Username: "leader", Role: models.RoleGroupLeader}}
	for _, id := range f.members[journeyID] {
		if id == journey.LeaderID {
			continue
		}
		participants = append(participants, models.Participant{ID: id, Role: models.RoleTraveler})
	}
	return participants, nil
}

func (f *fakeDB) GetUserByEmail(context.Context, string) (*models.User, error) {
	return nil, models.ErrNotFound
}

func (f *fakeDB) CreateUser(context.Context, *models.RegisterRequest) (*models.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) GetUserByID(context.Context, int) (*models.User, error) {
	return nil, models.ErrNotFound
}

func (f *fakeDB) SaveLocationUpdate(context.Context, int, int, float64, float64) error {
	return nil
}

func (f *fakeDB) Close() error { return nil }

func validDestination() *models.GeoPoint {
	return &models.GeoPoint{Type: "Point", Coordinates: []float64{72.8777, 19.0760}}
}

func TestCreateJourney(t *testing.T) {
	db := newFakeDB()
	svc := NewJourneyService(db)

	journey, err := svc.Create(context.Background(), 1, validDestination())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if len(journey.Code) != codeLength {
		t.Errorf("Expected %d-character code, got %q", codeLength, journey.Code)
	}
	if journey.LeaderID != 1 {
		t.Errorf("Expected leader 1, got %d", journey.LeaderID)
	}
	if journey.Status != models.JourneyStatusActive {
		t.Errorf("Expected active status, got %q", journey.Status)
	}
	if len(journey.Members) != 0 {
		t.Errorf("Expected empty member set, got %v", journey.Members)
	}
}

func TestCreateJourneyRetriesCodeCollision(t *testing.T) {
	db := newFakeDB()
	db.conflicts = 2
	svc := NewJourneyService(db)

	journey, err := svc.Create(context.Background(), 1, validDestination())
	if err != nil {
		t.Fatalf("Create returned error after collisions: %v", err)
	}

	if db.creates != 3 {
		t.Errorf("Expected 3 create attempts, got %d", db.creates)
	}
	if journey.Code == "" {
		t.Error("Expected a code after retries")
	}
}

func TestCreateJourneyValidation(t *testing.T) {
	svc := NewJourneyService(newFakeDB())

	cases := []struct {
		name        string
		destination *models.GeoPoint
	}{
		{"nil destination", nil},
		{"missing coordinates", &models.GeoPoint{Type: "Point"}},
		{"wrong type", &models.GeoPoint{Type: "LineString", Coordinates: []float64{1, 2}}},
		{"one coordinate", &models.GeoPoint{Type: "Point", Coordinates: []float64{72.8}}},
		{"longitude out of range", &models.GeoPoint{Type: "Point", Coordinates: []float64{181, 10}}},
		{"latitude out of range", &models.GeoPoint{Type: "Point", Coordinates: []float64{10, -91}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), 1, c.destination)
			if !errors.Is(err, models.ErrValidation) {
				t.Errorf("Expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestJoinByCodeIsIdempotent(t *testing.T) {
	db := newFakeDB()
	svc := NewJourneyService(db)

	created, err := svc.Create(context.Background(), 1, validDestination())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	first, err := svc.JoinByCode(context.Background(), created.Code, 2)
	if err != nil {
		t.Fatalf("First join returned error: %v", err)
	}
	second, err := svc.JoinByCode(context.Background(), created.Code, 2)
	if err != nil {
		t.Fatalf("Second join returned error: %v", err)
	}

	if len(first.Members) != 1 || len(second.Members) != 1 {
		t.Errorf("Expected member set size 1 after repeat joins, got %d then %d",
			len(first.Members), len(second.Members))
	}
}

func TestJoinByCodeNotFound(t *testing.T) {
	svc := NewJourneyService(newFakeDB())

	_, err := svc.JoinByCode(context.Background(), "NOSUCH", 2)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateDestinationLeaderOnly(t *testing.T) {
	db := newFakeDB()
	svc := NewJourneyService(db)

	created, err := svc.Create(context.Background(), 1, validDestination())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	newDest := &models.GeoPoint{Type: "Point", Coordinates: []float64{77.5946, 12.9716}}

	_, err = svc.UpdateDestination(context.Background(), created.ID, 2, newDest)
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("Expected ErrForbidden for non-leader, got %v", err)
	}

	unchanged, _ := db.GetJourneyByID(context.Background(), created.ID)
	if unchanged.Destination.Longitude() != 72.8777 {
		t.Errorf("Destination changed by a non-leader: %v", unchanged.Destination)
	}

	updated, err := svc.UpdateDestination(context.Background(), created.ID, 1, newDest)
	if err != nil {
		t.Fatalf("Leader update returned error: %v", err)
	}
	if updated.Destination.Longitude() != 77.5946 {
		t.Errorf("Expected updated destination, got %v", updated.Destination)
	}
}

func TestUpdateDestinationNotFound(t *testing.T) {
	svc := NewJourneyService(newFakeDB())

	_, err := svc.UpdateDestination(context.Background(), 99, 1, validDestination())
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGenerateCodeAlphabet(t *testing.T) {
	seen := make(map[rune]int)
	for i := 0; i < 2000; i++ {
		code, err := generateCode(codeLength)
		if err != nil {
			t.Fatalf("generateCode returned error: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("Expected length %d, got %q", codeLength, code)
		}
		for _, ch := range code {
			if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
				t.Fatalf("Unexpected character %q in code %q", ch, code)
			}
			seen[ch]++
		}
	}

	// 12000 uniform draws over 36 symbols: every symbol must show up.
	if len(seen) != len(codeAlphabet) {
		t.Errorf("Expected all %d alphabet characters across samples, saw %d", len(codeAlphabet), len(seen))
	}
}
