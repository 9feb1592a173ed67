package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/creatorcast/backend/internal/database"
	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
)

type ChannelRepository struct {
	db *database.DB
}

func NewChannelRepository(db *database.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Upsert inserts the channel or refreshes its metadata when the user has
// already connected this platform channel before.
func (r *ChannelRepository) Upsert(ch *models.Channel) error {
	query := `
        INSERT INTO channels (id, user_id, platform_channel_id, title, avatar_url, subscriber_count, video_count, connected, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id, platform_channel_id) DO UPDATE SET
            title = EXCLUDED.title,
            avatar_url = EXCLUDED.avatar_url,
            subscriber_count = EXCLUDED.subscriber_count,
            video_count = EXCLUDED.video_count,
            connected = TRUE,
            updated_at = NOW()
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(query,
		ch.ID,
		ch.UserID,
		ch.PlatformChannelID,
		ch.Title,
		ch.AvatarURL,
		ch.SubscriberCount,
		ch.VideoCount,
		ch.Connected,
		ch.CreatedAt,
		ch.UpdatedAt,
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}
	return nil
}

func (r *ChannelRepository) GetByID(id uuid.UUID) (*models.Channel, error) {
	query := `
        SELECT id, user_id, platform_channel_id, title, avatar_url, subscriber_count, video_count, connected, created_at, updated_at
        FROM channels WHERE id = $1
    `
	ch := &models.Channel{}
	err := r.db.QueryRow(query, id).Scan(
		&ch.ID,
		&ch.UserID,
		&ch.PlatformChannelID,
		&ch.Title,
		&ch.AvatarURL,
		&ch.SubscriberCount,
		&ch.VideoCount,
		&ch.Connected,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return ch, nil
}

func (r *ChannelRepository) ListByUser(userID uuid.UUID) ([]models.Channel, error) {
	query := `
        SELECT id, user_id, platform_channel_id, title, avatar_url, subscriber_count, video_count, connected, created_at, updated_at
        FROM channels WHERE user_id = $1 ORDER BY created_at
    `
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var out []models.Channel
	for rows.Next() {
		var ch models.Channel
		if err := rows.Scan(&ch.ID, &ch.UserID, &ch.PlatformChannelID, &ch.Title, &ch.AvatarURL, &ch.SubscriberCount, &ch.VideoCount, &ch.Connected, &ch.CreatedAt, &ch.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		out = append(out, ch)
	}
	return out, nil
}

// UpdateStats refreshes display metadata fetched from the platform.
func (r *ChannelRepository) UpdateStats(id uuid.UUID, title string, avatarURL *string, subscribers, videos int64) error {
	query := `
        UPDATE channels SET title = $1, avatar_url = $2, subscriber_count = $3, video_count = $4, updated_at = NOW()
        WHERE id = $5
    `
	_, err := r.db.Exec(query, title, avatarURL, subscribers, videos, id)
	if err != nil {
		return fmt.Errorf("failed to update channel stats: %w", err)
	}
	return nil
}

// Delete removes the channel; its token row cascades.
func (r *ChannelRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}
	return nil
}
