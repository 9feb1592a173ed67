// Package credentials owns the OAuth token lifecycle for connected channels:
// expiry detection, refresh against the platform, and persistence of every
// refreshed snapshot.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	// ErrReauthRequired means the channel's token is expired and cannot be
	// refreshed; the user must reconnect the channel.
	ErrReauthRequired = errors.New("channel authorization expired, reconnect the channel")

	// ErrCredentialsMissing means the user has not configured platform API
	// client credentials.
	ErrCredentialsMissing = errors.New("platform api credentials are not configured")
)

type TokenStore interface {
	GetByChannel(channelID uuid.UUID) (*models.Token, error)
	UpdateAccessToken(channelID uuid.UUID, accessToken string, expiresAt time.Time) error
}

type ChannelStore interface {
	GetByID(id uuid.UUID) (*models.Channel, error)
}

type UserStore interface {
	GetByID(id uuid.UUID) (*models.User, error)
}

// RefreshFunc exchanges a refresh token for a fresh access token.
type RefreshFunc func(ctx context.Context, clientID, clientSecret, refreshToken string) (*oauth2.Token, error)

type Manager struct {
	tokens   TokenStore
	channels ChannelStore
	users    UserStore
	refresh  RefreshFunc
	now      func() time.Time
}

func NewManager(tokens TokenStore, channels ChannelStore, users UserStore) *Manager {
	return &Manager{
		tokens:   tokens,
		channels: channels,
		users:    users,
		refresh:  refreshWithGoogle,
		now:      time.Now,
	}
}

// ValidAccessToken returns the channel's current access token, refreshing it
// first when expired. A refreshed token is persisted before it is returned, so
// later calls observe the new snapshot. The expiry comparison is exact
// (expiresAt <= now); no clock-skew buffer is applied.
func (m *Manager) ValidAccessToken(ctx context.Context, channelID uuid.UUID) (string, error) {
	tok, err := m.tokens.GetByChannel(channelID)
	if err != nil {
		return "", fmt.Errorf("load token for channel %s: %w", channelID, err)
	}

	if tok.ExpiresAt.After(m.now()) {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == nil || *tok.RefreshToken == "" {
		return "", ErrReauthRequired
	}

	ch, err := m.channels.GetByID(channelID)
	if err != nil {
		return "", fmt.Errorf("load channel %s: %w", channelID, err)
	}

	user, err := m.users.GetByID(ch.UserID)
	if err != nil {
		return "", fmt.Errorf("load user %s: %w", ch.UserID, err)
	}
	if !user.HasOAuthCredentials() {
		return "", ErrCredentialsMissing
	}

	fresh, err := m.refresh(ctx, *user.OAuthClientID, *user.OAuthClientSecret, *tok.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token for channel %s: %w", channelID, err)
	}

	// Persist the new snapshot before handing the token out.
	if err := m.tokens.UpdateAccessToken(channelID, fresh.AccessToken, fresh.Expiry); err != nil {
		return "", fmt.Errorf("persist refreshed token for channel %s: %w", channelID, err)
	}

	log.Printf("credentials: refreshed token for channel %s (expires %s)", channelID, fresh.Expiry.Format(time.RFC3339))
	return fresh.AccessToken, nil
}

func refreshWithGoogle(ctx context.Context, clientID, clientSecret, refreshToken string) (*oauth2.Token, error) {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
}
