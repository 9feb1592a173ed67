package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/creatorcast/backend/internal/database"
	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(u *models.User) error {
	query := `
        INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(query,
		u.ID,
		u.Email,
		u.DisplayName,
		u.PasswordHash,
		u.CreatedAt,
		u.UpdatedAt,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(id uuid.UUID) (*models.User, error) {
	return r.getOne(`WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	return r.getOne(`WHERE email = $1`, email)
}

func (r *UserRepository) getOne(where string, arg interface{}) (*models.User, error) {
	query := `
        SELECT id, email, display_name, password_hash, oauth_client_id, oauth_client_secret, created_at, updated_at
        FROM users ` + where
	u := &models.User{}
	err := r.db.QueryRow(query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&u.OAuthClientID,
		&u.OAuthClientSecret,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateOAuthCredentials stores the user's platform API client credentials.
func (r *UserRepository) UpdateOAuthCredentials(id uuid.UUID, clientID, clientSecret string) error {
	query := `UPDATE users SET oauth_client_id = $1, oauth_client_secret = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.Exec(query, clientID, clientSecret, id)
	if err != nil {
		return fmt.Errorf("failed to update oauth credentials: %w", err)
	}
	return nil
}
