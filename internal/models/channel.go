package models

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a connected platform channel owned by a user. A channel row is
// created when the OAuth callback completes and removed on disconnect, which
// cascades its token.
type Channel struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            uuid.UUID `json:"user_id" db:"user_id"`
	PlatformChannelID string    `json:"platform_channel_id" db:"platform_channel_id"`
	Title             string    `json:"title" db:"title"`
	AvatarURL         *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	SubscriberCount   int64     `json:"subscriber_count" db:"subscriber_count"`
	VideoCount        int64     `json:"video_count" db:"video_count"`
	Connected         bool      `json:"connected" db:"connected"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Token holds the OAuth tokens for exactly one channel.
type Token struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ChannelID    uuid.UUID `json:"channel_id" db:"channel_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
	Scope        *string   `json:"scope,omitempty" db:"scope"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
