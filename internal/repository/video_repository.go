package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/creatorcast/backend/internal/database"
	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type VideoRepository struct {
	db *database.DB
}

func NewVideoRepository(db *database.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Create(v *models.Video) error {
	query := `
        INSERT INTO videos (id, user_id, title, description, tags, file_path, thumbnail_path, status, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(query,
		v.ID,
		v.UserID,
		v.Title,
		v.Description,
		pq.Array(v.Tags),
		v.FilePath,
		v.ThumbnailPath,
		v.Status,
		v.CreatedAt,
		v.UpdatedAt,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

const videoColumns = `id, user_id, title, description, tags, file_path, thumbnail_path, status,
    published_to, external_video_id, premiere_time, premiere_channel_id, premiere_status, created_at, updated_at`

func (r *VideoRepository) scanVideo(row interface{ Scan(...interface{}) error }) (*models.Video, error) {
	v := &models.Video{}
	var publishedTo []uuid.UUID
	err := row.Scan(
		&v.ID,
		&v.UserID,
		&v.Title,
		&v.Description,
		pq.Array(&v.Tags),
		&v.FilePath,
		&v.ThumbnailPath,
		&v.Status,
		pq.Array(&publishedTo),
		&v.ExternalVideoID,
		&v.PremiereTime,
		&v.PremiereChannelID,
		&v.PremiereStatus,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.PublishedTo = publishedTo
	return v, nil
}

func (r *VideoRepository) GetByID(id uuid.UUID) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`
	v, err := r.scanVideo(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

func (r *VideoRepository) ListByUser(userID uuid.UUID) ([]models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	var out []models.Video
	for rows.Next() {
		v, err := r.scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		out = append(out, *v)
	}
	return out, nil
}

func (r *VideoRepository) UpdateStatus(id uuid.UUID, status models.VideoStatus) error {
	query := `UPDATE videos SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	return nil
}

// MarkPublished records a completed publish: the channels that succeeded, the
// first external id obtained, and clears the file path (the local file is
// removed from disk by the orchestrator).
func (r *VideoRepository) MarkPublished(id uuid.UUID, channels []uuid.UUID, externalID *string) error {
	query := `
        UPDATE videos SET status = 'published', published_to = $1, external_video_id = $2,
            file_path = NULL, updated_at = NOW()
        WHERE id = $3
    `
	_, err := r.db.Exec(query, pq.Array(channels), externalID, id)
	if err != nil {
		return fmt.Errorf("failed to mark video published: %w", err)
	}
	return nil
}

// SetPremiere records a confirmed platform-side premiere and clears the file path.
func (r *VideoRepository) SetPremiere(id uuid.UUID, channelID uuid.UUID, scheduledAt time.Time, externalID string) error {
	query := `
        UPDATE videos SET status = 'premiere_scheduled', premiere_time = $1, premiere_channel_id = $2,
            premiere_status = 'scheduled', external_video_id = $3, file_path = NULL, updated_at = NOW()
        WHERE id = $4
    `
	_, err := r.db.Exec(query, scheduledAt, channelID, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to set premiere: %w", err)
	}
	return nil
}

func (r *VideoRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}
