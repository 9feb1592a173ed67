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

type LiveStreamRepository struct {
	db *database.DB
}

func NewLiveStreamRepository(db *database.DB) *LiveStreamRepository {
	return &LiveStreamRepository{db: db}
}

func (r *LiveStreamRepository) Create(s *models.LiveStream) error {
	query := `
        INSERT INTO live_streams (id, user_id, channel_id, title, description, tags, type, video_id,
            scheduled_start, broadcast_id, ingestion_stream_id, stream_key, ingestion_url, rtmp_url,
            status, privacy, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(query,
		s.ID,
		s.UserID,
		s.ChannelID,
		s.Title,
		s.Description,
		pq.Array(s.Tags),
		s.Type,
		s.VideoID,
		s.ScheduledStart,
		s.BroadcastID,
		s.IngestionStreamID,
		s.StreamKey,
		s.IngestionURL,
		s.RTMPURL,
		s.Status,
		s.Privacy,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create live stream: %w", err)
	}
	return nil
}

const liveStreamColumns = `id, user_id, channel_id, title, description, tags, type, video_id,
    scheduled_start, actual_start, actual_end, broadcast_id, ingestion_stream_id, stream_key,
    ingestion_url, rtmp_url, status, privacy, created_at, updated_at`

func (r *LiveStreamRepository) scanStream(row interface{ Scan(...interface{}) error }) (*models.LiveStream, error) {
	s := &models.LiveStream{}
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.ChannelID,
		&s.Title,
		&s.Description,
		pq.Array(&s.Tags),
		&s.Type,
		&s.VideoID,
		&s.ScheduledStart,
		&s.ActualStart,
		&s.ActualEnd,
		&s.BroadcastID,
		&s.IngestionStreamID,
		&s.StreamKey,
		&s.IngestionURL,
		&s.RTMPURL,
		&s.Status,
		&s.Privacy,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *LiveStreamRepository) GetByID(id uuid.UUID) (*models.LiveStream, error) {
	query := `SELECT ` + liveStreamColumns + ` FROM live_streams WHERE id = $1`
	s, err := r.scanStream(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live stream: %w", err)
	}
	return s, nil
}

func (r *LiveStreamRepository) ListByUser(userID uuid.UUID) ([]models.LiveStream, error) {
	query := `SELECT ` + liveStreamColumns + ` FROM live_streams WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list live streams: %w", err)
	}
	defer rows.Close()

	var out []models.LiveStream
	for rows.Next() {
		s, err := r.scanStream(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan live stream: %w", err)
		}
		out = append(out, *s)
	}
	return out, nil
}

// MarkLive records a successful supervisor start. The live transition always
// loses to complete: a process that crashes before this write lands has
// already been reconciled, and that terminal state must not be overwritten.
func (r *LiveStreamRepository) MarkLive(id uuid.UUID, startedAt time.Time) error {
	query := `UPDATE live_streams SET status = 'live', actual_start = $1, updated_at = NOW() WHERE id = $2 AND status <> 'complete'`
	_, err := r.db.Exec(query, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark live stream live: %w", err)
	}
	return nil
}

// MarkComplete is the exit-reconciliation write: it runs on stop, on crash,
// and on the boot sweep, so persisted status never diverges from reality for
// longer than one exit tick.
func (r *LiveStreamRepository) MarkComplete(id uuid.UUID, endedAt time.Time) error {
	query := `UPDATE live_streams SET status = 'complete', actual_end = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(query, endedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark live stream complete: %w", err)
	}
	return nil
}

// SweepStaleLive marks every stream still recorded as live as complete. The
// in-memory process registry is empty on a fresh boot, so any row left in
// 'live' belongs to a previous instance.
func (r *LiveStreamRepository) SweepStaleLive(endedAt time.Time) (int64, error) {
	query := `UPDATE live_streams SET status = 'complete', actual_end = $1, updated_at = NOW() WHERE status = 'live'`
	res, err := r.db.Exec(query, endedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale live streams: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *LiveStreamRepository) Delete(id uuid.UUID) error {
	_, err := r.db.Exec(`DELETE FROM live_streams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete live stream: %w", err)
	}
	return nil
}
