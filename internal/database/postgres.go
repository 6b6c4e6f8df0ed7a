package database

import (
	"context"
	"errors"
	"fmt"

	"journey-app/internal/models"
	"journey-app/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// ErrCodeConflict is returned when a generated journey code collides with an
// existing one. The registry retries code generation on this error.
var ErrCodeConflict = errors.New("journey code already exists")

const uniqueViolation = "23505"

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, username, email, role, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleTraveler
	}

	query := `
		INSERT INTO users (username, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, username, email, role, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, req.Username, req.Email, role, string(hash)).Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, username, email, role, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Email, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	return user, nil
}

// Journey Repository Implementation
func (db *PostgresDB) CreateJourney(ctx context.Context, code string, leaderID int, destination *models.GeoPoint) (*models.Journey, error) {
	query := `
		INSERT INTO journey_sessions (code, leader_id, dest_lng, dest_lat, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, code, leader_id, status, created_at, updated_at`

	journey := &models.Journey{Destination: destination, Members: []int{}}
	err := db.pool.QueryRow(ctx, query,
		code, leaderID, destination.Longitude(), destination.Latitude(), models.JourneyStatusActive,
	).Scan(&journey.ID, &journey.Code, &journey.LeaderID, &journey.Status, &journey.CreatedAt, &journey.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrCodeConflict
		}
		return nil, fmt.Errorf("failed to create journey: %w", err)
	}

	return journey, nil
}

func (db *PostgresDB) GetJourneyByCode(ctx context.Context, code string) (*models.Journey, error) {
	query := `
		SELECT id, code, leader_id, dest_lng, dest_lat, status, created_at, updated_at
		FROM journey_sessions WHERE code = $1`

	return db.scanJourney(ctx, db.pool.QueryRow(ctx, query, code))
}

func (db *PostgresDB) GetJourneyByID(ctx context.Context, id int) (*models.Journey, error) {
	query := `
		SELECT id, code, leader_id, dest_lng, dest_lat, status, created_at, updated_at
		FROM journey_sessions WHERE id = $1`

	return db.scanJourney(ctx, db.pool.QueryRow(ctx, query, id))
}

func (db *PostgresDB) scanJourney(ctx context.Context, row pgx.Row) (*models.Journey, error) {
	journey := &models.Journey{}
	var lng, lat *float64
	err := row.Scan(
		&journey.ID, &journey.Code, &journey.LeaderID, &lng, &lat,
		&journey.Status, &journey.CreatedAt, &journey.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}

	if lng != nil && lat != nil {
		journey.Destination = &models.GeoPoint{Type: "Point", Coordinates: []float64{*lng, *lat}}
	}

	members, err := db.getMemberIDs(ctx, journey.ID)
	if err != nil {
		return nil, err
	}
	journey.Members = members

	return journey, nil
}

func (db *PostgresDB) getMemberIDs(ctx context.Context, journeyID int) ([]int, error) {
	query := `SELECT user_id FROM journey_members WHERE journey_id = $1 ORDER BY joined_at`

	rows, err := db.pool.Query(ctx, query, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}

	return members, rows.Err()
}

// AddMember is idempotent: joining twice leaves the member set unchanged.
// The join table makes concurrent joins safe without read-modify-write.
func (db *PostgresDB) AddMember(ctx context.Context, journeyID, userID int) error {
	query := `
		INSERT INTO journey_members (journey_id, user_id, joined_at) VALUES ($1, $2, NOW())
		ON CONFLICT (journey_id, user_id) DO NOTHING`

	_, err := db.pool.Exec(ctx, query, journeyID, userID)
	return err
}

func (db *PostgresDB) SetDestination(ctx context.Context, journeyID int, destination *models.GeoPoint) (*models.Journey, error) {
	query := `
		UPDATE journey_sessions SET dest_lng = $2, dest_lat = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, code, leader_id, dest_lng, dest_lat, status, created_at, updated_at`

	return db.scanJourney(ctx, db.pool.QueryRow(ctx, query,
		journeyID, destination.Longitude(), destination.Latitude()))
}

// GetParticipants returns the leader first, then members in join order.
func (db *PostgresDB) GetParticipants(ctx context.Context, journeyID int) ([]models.Participant, error) {
	query := `
		SELECT id, username, role FROM (
			SELECT u.id, u.username, u.role, TRUE AS is_leader, NULL::timestamptz AS joined_at
			FROM journey_sessions j JOIN users u ON u.id = j.leader_id
			WHERE j.id = $1
			UNION ALL
			SELECT u.id, u.username, u.role, FALSE, m.joined_at
			FROM journey_members m JOIN users u ON u.id = m.user_id
			WHERE m.journey_id = $1 AND m.user_id != (SELECT leader_id FROM journey_sessions WHERE id = $1)
		) p
		ORDER BY is_leader DESC, joined_at`

	rows, err := db.pool.Query(ctx, query, journeyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p := models.Participant{}
		if err := rows.Scan(&p.ID, &p.Username, &p.Role); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

// Location Repository Implementation
func (db *PostgresDB) SaveLocationUpdate(ctx context.Context, journeyID, userID int, longitude, latitude float64) error {
	query := `
		INSERT INTO location_updates (journey_id, user_id, longitude, latitude, created_at)
		VALUES ($1, $2, $3, $4, NOW())`

	_, err := db.pool.Exec(ctx, query, journeyID, userID, longitude, latitude)
	return err
}
