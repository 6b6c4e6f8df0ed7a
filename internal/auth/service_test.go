package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"journey-app/internal/config"
	"journey-app/internal/models"

	"golang.org/x/crypto/bcrypt"
)

type fakeUserDB struct {
	nextID  int
	byID    map[int]*models.User
	byEmail map[string]*models.User
}

func newFakeUserDB() *fakeUserDB {
	return &fakeUserDB{
		byID:    make(map[int]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (f *fakeUserDB) CreateUser(_ context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = models.RoleTraveler
	}

	f.nextID++
	user := &models.User{
		ID:           f.nextID,
		Username:     req.Username,
		Email:        req.Email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return user, nil
}

func (f *fakeUserDB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserDB) GetUserByID(_ context.Context, id int) (*models.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserDB) CreateJourney(context.Context, string, int, *models.GeoPoint) (*models.Journey, error) {
	return nil, models.ErrNotFound
}

func (f *fakeUserDB) GetJourneyByCode(context.Context, string) (*models.Journey, error) {
	return nil, models.ErrNotFound
}

func (f *fakeUserDB) GetJourneyByID(context.Context, int) (*models.Journey, error) {
	return nil, models.ErrNotFound
}

func (f *fakeUserDB) AddMember(context.Context, int, int) error { return nil }

func (f *fakeUserDB) SetDestination(context.Context, int, *models.GeoPoint) (*models.Journey, error) {
	return nil, models.ErrNotFound
}

func (f *fakeUserDB) GetParticipants(context.Context, int) ([]models.Participant, error) {
	return nil, models.ErrNotFound
}

func (f *fakeUserDB) SaveLocationUpdate(context.Context, int, int, float64, float64) error {
	return nil
}

func (f *fakeUserDB) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:    []byte("test-secret-key"),
			ExpiresIn: time.Hour,
		},
	}
}

func registerRequest() *models.RegisterRequest {
	return &models.RegisterRequest{
		Username: "amira",
		Email:    "amira@example.com",
		Password: "password123",
		Role:     models.RoleGroupLeader,
	}
}

func TestRegisterAndTokenRoundTrip(t *testing.T) {
	svc := NewService(newFakeUserDB(), testConfig())

	resp, err := svc.Register(context.Background(), registerRequest())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("Expected a token")
	}

	claims, err := svc.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken returned error: %v", err)
	}
	if (*claims)["username"] != "amira" {
		t.Errorf("Expected username claim amira, got %v", (*claims)["username"])
	}
	if (*claims)["role"] != models.RoleGroupLeader {
		t.Errorf("Expected role claim %q, got %v", models.RoleGroupLeader, (*claims)["role"])
	}

	user, err := svc.GetUserFromToken(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("GetUserFromToken returned error: %v", err)
	}
	if user.ID != resp.User.ID || user.Username != "amira" {
		t.Errorf("Token resolved to the wrong user: %+v", user)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newFakeUserDB(), testConfig())

	cases := []struct {
		name   string
		mutate func(*models.RegisterRequest)
	}{
		{"missing username", func(r *models.RegisterRequest) { r.Username = "" }},
		{"bad email", func(r *models.RegisterRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *models.RegisterRequest) { r.Password = "short" }},
		{"short username", func(r *models.RegisterRequest) { r.Username = "ab" }},
		{"unknown role", func(r *models.RegisterRequest) { r.Role = "Admin" }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := registerRequest()
			c.mutate(req)
			if _, err := svc.Register(context.Background(), req); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	db := newFakeUserDB()
	svc := NewService(db, testConfig())

	if _, err := svc.Register(context.Background(), registerRequest()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	resp, err := svc.Login(context.Background(), &models.LoginRequest{
		Email:    "amira@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if resp.Token == "" {
		t.Error("Expected a token")
	}
	if resp.User.PasswordHash != "" {
		t.Error("Login response must not carry the password hash")
	}

	if _, err := svc.Login(context.Background(), &models.LoginRequest{
		Email:    "amira@example.com",
		Password: "wrong-password",
	}); err == nil {
		t.Error("Expected an error for a wrong password")
	}

	if _, err := svc.Login(context.Background(), &models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "password123",
	}); err == nil {
		t.Error("Expected an error for an unknown email")
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewService(newFakeUserDB(), testConfig())

	resp, err := svc.Register(context.Background(), registerRequest())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	tampered := resp.Token[:len(resp.Token)-2] + "xx"
	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Error("Expected a tampered token to be rejected")
	}

	if _, err := svc.ValidateToken("not.a.token"); err == nil {
		t.Error("Expected garbage to be rejected")
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	db := newFakeUserDB()
	svc := NewService(db, testConfig())

	resp, err := svc.Register(context.Background(), registerRequest())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	foreign := testConfig()
	foreign.JWT.Secret = []byte("some-other-secret")
	other := NewService(db, foreign)

	if _, err := other.ValidateToken(resp.Token); err == nil {
		t.Error("Expected a token signed with a different secret to be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.ExpiresIn = -time.Hour
	svc := NewService(newFakeUserDB(), cfg)

	resp, err := svc.Register(context.Background(), registerRequest())
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	_, err = svc.ValidateToken(resp.Token)
	if err == nil {
		t.Fatal("Expected an expired token to be rejected")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("Expected an expiry error, got %v", err)
	}
}
