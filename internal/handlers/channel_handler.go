package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/creatorcast/backend/internal/auth"
	"github.com/creatorcast/backend/internal/cache"
	"github.com/creatorcast/backend/internal/credentials"
	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/creatorcast/backend/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// youtubeScopes covers uploads, live broadcast management and channel reads.
var youtubeScopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
	"https://www.googleapis.com/auth/youtube.readonly",
}

type ChannelHandler struct {
	userRepo    *repository.UserRepository
	channelRepo *repository.ChannelRepository
	tokenRepo   *repository.TokenRepository
	tokens      *credentials.Manager
	api         *platform.YouTube
	jwtService  *auth.JWTService
	redis       *cache.RedisClient
	redirectURL string
}

func NewChannelHandler(
	userRepo *repository.UserRepository,
	channelRepo *repository.ChannelRepository,
	tokenRepo *repository.TokenRepository,
	tokens *credentials.Manager,
	api *platform.YouTube,
	jwtService *auth.JWTService,
	redis *cache.RedisClient,
	redirectURL string,
) *ChannelHandler {
	return &ChannelHandler{
		userRepo:    userRepo,
		channelRepo: channelRepo,
		tokenRepo:   tokenRepo,
		tokens:      tokens,
		api:         api,
		jwtService:  jwtService,
		redis:       redis,
		redirectURL: redirectURL,
	}
}

// oauthConfigFor builds the per-user OAuth config from the user's stored
// client credentials.
func (h *ChannelHandler) oauthConfigFor(user *models.User) (*oauth2.Config, error) {
	if !user.HasOAuthCredentials() {
		return nil, credentials.ErrCredentialsMissing
	}
	return &oauth2.Config{
		ClientID:     *user.OAuthClientID,
		ClientSecret: *user.OAuthClientSecret,
		RedirectURL:  h.redirectURL,
		Scopes:       youtubeScopes,
		Endpoint:     google.Endpoint,
	}, nil
}

// Connect returns the platform consent URL. The signed user token rides along
// as the OAuth state so the callback can attribute the grant.
func (h *ChannelHandler) Connect(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	user, err := h.userRepo.GetByID(uid)
	if err != nil {
		respondError(c, err)
		return
	}

	cfg, err := h.oauthConfigFor(user)
	if err != nil {
		respondError(c, err)
		return
	}

	state, err := h.jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		ErrorResponse(c, http.StatusInternalServerError, "Failed to generate state")
		return
	}

	// AccessTypeOffline plus ApprovalForce makes the platform return a refresh
	// token on every connect, not just the first.
	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// grantedScope extracts the scope string the authorization server reported
// with the exchanged token. The token endpoint returns it as an extra field,
// so it only exists on freshly exchanged tokens.
func grantedScope(tok *oauth2.Token) string {
	scope, _ := tok.Extra("scope").(string)
	return scope
}

// Callback completes the OAuth flow: exchanges the code, discovers the
// granted channels and stores one channel row plus token per channel.
func (h *ChannelHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		ErrorResponse(c, http.StatusBadRequest, "Missing state or code")
		return
	}

	claims, err := h.jwtService.ValidateToken(state)
	if err != nil {
		ErrorResponse(c, http.StatusUnauthorized, "Invalid state")
		return
	}

	user, err := h.userRepo.GetByID(claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	cfg, err := h.oauthConfigFor(user)
	if err != nil {
		respondError(c, err)
		return
	}

	tok, err := cfg.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Printf("channels: code exchange failed: %v", err)
		ErrorResponse(c, http.StatusBadGateway, "Authorization exchange failed")
		return
	}

	infos, err := h.api.ListChannels(c.Request.Context(), tok.AccessToken)
	if err != nil {
		log.Printf("channels: listing channels failed: %v", err)
		ErrorResponse(c, http.StatusBadGateway, "Failed to list channels")
		return
	}
	if len(infos) == 0 {
		ErrorResponse(c, http.StatusNotFound, "No channels on this account")
		return
	}

	channels := make([]models.Channel, 0, len(infos))
	for _, info := range infos {
		ch := &models.Channel{
			ID:                uuid.New(),
			UserID:            user.ID,
			PlatformChannelID: info.ID,
			Title:             info.Title,
			SubscriberCount:   info.SubscriberCount,
			VideoCount:        info.VideoCount,
			Connected:         true,
			CreatedAt:         time.Now(),
			UpdatedAt:         time.Now(),
		}
		if info.AvatarURL != "" {
			avatar := info.AvatarURL
			ch.AvatarURL = &avatar
		}
		if err := h.channelRepo.Upsert(ch); err != nil {
			respondError(c, err)
			return
		}

		token := &models.Token{
			ID:          uuid.New(),
			ChannelID:   ch.ID,
			AccessToken: tok.AccessToken,
			ExpiresAt:   tok.Expiry,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if tok.RefreshToken != "" {
			rt := tok.RefreshToken
			token.RefreshToken = &rt
		}
		if scope := grantedScope(tok); scope != "" {
			token.Scope = &scope
		}
		if err := h.tokenRepo.Upsert(token); err != nil {
			respondError(c, err)
			return
		}

		channels = append(channels, *ch)
	}

	h.invalidateCache(user.ID)

	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// List returns the user's connected channels, served from cache when warm.
func (h *ChannelHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	if h.redis != nil {
		cached, err := h.redis.GetChannelList(uid)
		if err != nil {
			log.Printf("channels: cache read failed: %v", err)
		} else if cached != nil {
			c.JSON(http.StatusOK, gin.H{"channels": cached})
			return
		}
	}

	channels, err := h.channelRepo.ListByUser(uid)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.redis != nil {
		if err := h.redis.SetChannelList(uid, channels); err != nil {
			log.Printf("channels: cache write failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// Refresh re-fetches channel statistics from the platform for one channel.
func (h *ChannelHandler) Refresh(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid channel id")
		return
	}

	ch, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ch.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return
	}

	accessToken, err := h.tokens.ValidAccessToken(c.Request.Context(), channelID)
	if err != nil {
		respondError(c, err)
		return
	}

	infos, err := h.api.ListChannels(c.Request.Context(), accessToken)
	if err != nil {
		log.Printf("channels: stats refresh failed: %v", err)
		ErrorResponse(c, http.StatusBadGateway, "Failed to refresh channel")
		return
	}

	for _, info := range infos {
		if info.ID != ch.PlatformChannelID {
			continue
		}
		var avatar *string
		if info.AvatarURL != "" {
			a := info.AvatarURL
			avatar = &a
		}
		if err := h.channelRepo.UpdateStats(ch.ID, info.Title, avatar, info.SubscriberCount, info.VideoCount); err != nil {
			respondError(c, err)
			return
		}
		break
	}

	h.invalidateCache(uid)

	updated, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Disconnect removes the channel; its token row cascades.
func (h *ChannelHandler) Disconnect(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid channel id")
		return
	}

	ch, err := h.channelRepo.GetByID(channelID)
	if err != nil {
		respondError(c, err)
		return
	}
	if ch.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return
	}

	if err := h.channelRepo.Delete(channelID); err != nil {
		respondError(c, err)
		return
	}

	h.invalidateCache(uid)

	c.JSON(http.StatusOK, gin.H{"message": "Channel disconnected"})
}

func (h *ChannelHandler) invalidateCache(userID uuid.UUID) {
	if h.redis == nil {
		return
	}
	if err := h.redis.InvalidateChannelList(userID); err != nil {
		log.Printf("channels: cache invalidation failed: %v", err)
	}
}
