package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/creatorcast/backend/internal/database"
	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
)

type TokenRepository struct {
	db *database.DB
}

func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert stores the token snapshot for a channel, replacing any previous one.
func (r *TokenRepository) Upsert(t *models.Token) error {
	query := `
        INSERT INTO tokens (id, channel_id, access_token, refresh_token, expires_at, scope, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (channel_id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = COALESCE(EXCLUDED.refresh_token, tokens.refresh_token),
            expires_at = EXCLUDED.expires_at,
            scope = EXCLUDED.scope,
            updated_at = NOW()
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(query,
		t.ID,
		t.ChannelID,
		t.AccessToken,
		t.RefreshToken,
		t.ExpiresAt,
		t.Scope,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetByChannel(channelID uuid.UUID) (*models.Token, error) {
	query := `
        SELECT id, channel_id, access_token, refresh_token, expires_at, scope, created_at, updated_at
        FROM tokens WHERE channel_id = $1
    `
	t := &models.Token{}
	err := r.db.QueryRow(query, channelID).Scan(
		&t.ID,
		&t.ChannelID,
		&t.AccessToken,
		&t.RefreshToken,
		&t.ExpiresAt,
		&t.Scope,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return t, nil
}

// UpdateAccessToken persists a refreshed access token and its new expiry.
func (r *TokenRepository) UpdateAccessToken(channelID uuid.UUID, accessToken string, expiresAt time.Time) error {
	query := `UPDATE tokens SET access_token = $1, expires_at = $2, updated_at = NOW() WHERE channel_id = $3`
	_, err := r.db.Exec(query, accessToken, expiresAt, channelID)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	return nil
}
