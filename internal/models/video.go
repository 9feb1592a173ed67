package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoStatusDraft             VideoStatus = "draft"
	VideoStatusProcessing        VideoStatus = "processing"
	VideoStatusPublished         VideoStatus = "published"
	VideoStatusFailed            VideoStatus = "failed"
	VideoStatusPremiereScheduled VideoStatus = "premiere_scheduled"
)

type PremiereStatus string

const (
	PremiereStatusScheduled PremiereStatus = "scheduled"
)

// Video is a locally stored video in the library. FilePath is set while the
// video is unpublished; a successful publish or premiere removes the file from
// disk and clears the path, while the row itself persists.
type Video struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	UserID        uuid.UUID   `json:"user_id" db:"user_id"`
	Title         string      `json:"title" db:"title"`
	Description   string      `json:"description" db:"description"`
	Tags          []string    `json:"tags,omitempty" db:"tags"`
	FilePath      *string     `json:"file_path,omitempty" db:"file_path"`
	ThumbnailPath *string     `json:"thumbnail_path,omitempty" db:"thumbnail_path"`
	Status        VideoStatus `json:"status" db:"status"`

	// Channels the video has actually been published to, and the external id
	// returned for the first successful channel.
	PublishedTo     []uuid.UUID `json:"published_to,omitempty" db:"published_to"`
	ExternalVideoID *string     `json:"external_video_id,omitempty" db:"external_video_id"`

	// Premiere schedule, set when a premiere has been created on the platform.
	PremiereTime      *time.Time      `json:"premiere_time,omitempty" db:"premiere_time"`
	PremiereChannelID *uuid.UUID      `json:"premiere_channel_id,omitempty" db:"premiere_channel_id"`
	PremiereStatus    *PremiereStatus `json:"premiere_status,omitempty" db:"premiere_status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks basic video fields
func (v *Video) Validate() error {
	if v.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(v.Title) > 100 {
		return fmt.Errorf("title too long")
	}
	return nil
}

type PublishVideoRequest struct {
	ChannelIDs    []uuid.UUID `json:"channel_ids" binding:"required,min=1"`
	Privacy       string      `json:"privacy"`
	ScheduledTime *time.Time  `json:"scheduled_time,omitempty"`
}

type SchedulePremiereRequest struct {
	ChannelID     uuid.UUID `json:"channel_id" binding:"required"`
	ScheduledTime time.Time `json:"scheduled_time" binding:"required"`
}
