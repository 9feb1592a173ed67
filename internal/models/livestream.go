package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StreamType string

const (
	// StreamTypeRTMP means an external encoder pushes to the platform-provided
	// ingestion endpoint; the supervisor never touches these.
	StreamTypeRTMP StreamType = "rtmp"
	// StreamTypeVideo means the system pushes a stored video file into the
	// ingestion endpoint via the supervised re-streaming process.
	StreamTypeVideo StreamType = "video"
)

type LiveStreamStatus string

const (
	LiveStreamStatusCreated  LiveStreamStatus = "created"
	LiveStreamStatusTesting  LiveStreamStatus = "testing"
	LiveStreamStatusLive     LiveStreamStatus = "live"
	LiveStreamStatusComplete LiveStreamStatus = "complete"
)

// LiveStream is a provisioned platform live broadcast plus its ingestion
// endpoint. A row is created when provisioning completes; status transitions
// are driven by start/stop operations and by the supervisor's exit callback.
type LiveStream struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	ChannelID   uuid.UUID  `json:"channel_id" db:"channel_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Tags        []string   `json:"tags,omitempty" db:"tags"`
	Type        StreamType `json:"type" db:"type"`
	VideoID     *uuid.UUID `json:"video_id,omitempty" db:"video_id"`

	ScheduledStart *time.Time `json:"scheduled_start,omitempty" db:"scheduled_start"`
	ActualStart    *time.Time `json:"actual_start,omitempty" db:"actual_start"`
	ActualEnd      *time.Time `json:"actual_end,omitempty" db:"actual_end"`

	BroadcastID       *string `json:"broadcast_id,omitempty" db:"broadcast_id"`
	IngestionStreamID *string `json:"ingestion_stream_id,omitempty" db:"ingestion_stream_id"`
	StreamKey         *string `json:"-" db:"stream_key"`
	IngestionURL      *string `json:"ingestion_url,omitempty" db:"ingestion_url"`
	RTMPURL           *string `json:"-" db:"rtmp_url"`

	Status  LiveStreamStatus `json:"status" db:"status"`
	Privacy string           `json:"privacy" db:"privacy"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateLiveStreamRequest struct {
	ChannelID      uuid.UUID  `json:"channel_id" binding:"required"`
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags,omitempty"`
	ScheduledStart time.Time  `json:"scheduled_start" binding:"required"`
	Privacy        string     `json:"privacy"`
	Type           StreamType `json:"type" binding:"required"`
	VideoID        *uuid.UUID `json:"video_id,omitempty"`
}

// Validate checks cross-field rules the binding tags cannot express.
func (r *CreateLiveStreamRequest) Validate() error {
	switch r.Type {
	case StreamTypeRTMP:
		if r.VideoID != nil {
			return fmt.Errorf("video_id is not allowed for rtmp streams")
		}
	case StreamTypeVideo:
		if r.VideoID == nil {
			return fmt.Errorf("video_id is required for video streams")
		}
	default:
		return fmt.Errorf("invalid stream type %q", r.Type)
	}
	return nil
}

type StartLiveStreamRequest struct {
	Loop bool `json:"loop"`
}

type StreamStatusResponse struct {
	StreamID  uuid.UUID        `json:"stream_id"`
	Status    LiveStreamStatus `json:"status"`
	IsActive  bool             `json:"is_active"`
	StartTime *time.Time       `json:"start_time,omitempty"`
	VideoPath *string          `json:"video_path,omitempty"`
}
