package handlers

import (
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creatorcast/backend/internal/cache"
	"github.com/creatorcast/backend/internal/events"
	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/publish"
	"github.com/creatorcast/backend/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxUploadSize bounds incoming video files (8 GiB).
const maxUploadSize = 8 << 30

type VideoHandler struct {
	videoRepo    *repository.VideoRepository
	orchestrator *publish.Orchestrator
	hub          *events.Hub
	redis        *cache.RedisClient
	uploadDir    string
}

func NewVideoHandler(
	videoRepo *repository.VideoRepository,
	orchestrator *publish.Orchestrator,
	hub *events.Hub,
	redis *cache.RedisClient,
	uploadDir string,
) *VideoHandler {
	return &VideoHandler{
		videoRepo:    videoRepo,
		orchestrator: orchestrator,
		hub:          hub,
		redis:        redis,
		uploadDir:    uploadDir,
	}
}

// Upload accepts a multipart video upload into the local library.
func (h *VideoHandler) Upload(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, err := c.FormFile("video")
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Video file is required")
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	video := &models.Video{
		ID:          uuid.New(),
		UserID:      uid,
		Title:       title,
		Description: c.PostForm("description"),
		Tags:        tags,
		Status:      models.VideoStatusDraft,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := video.Validate(); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	// Stored under a generated name so uploads can never collide or carry
	// path segments from the client.
	fileName := video.ID.String() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.uploadDir, fileName)); err != nil {
		log.Printf("videos: saving upload failed: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Failed to store video")
		return
	}
	video.FilePath = &fileName

	if thumb, err := c.FormFile("thumbnail"); err == nil {
		thumbName := video.ID.String() + "_thumb" + filepath.Ext(thumb.Filename)
		if err := c.SaveUploadedFile(thumb, filepath.Join(h.uploadDir, thumbName)); err != nil {
			log.Printf("videos: saving thumbnail failed: %v", err)
		} else {
			video.ThumbnailPath = &thumbName
		}
	}

	if err := h.videoRepo.Create(video); err != nil {
		os.Remove(filepath.Join(h.uploadDir, fileName))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, video)
}

// List returns the user's video library
func (h *VideoHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	videos, err := h.videoRepo.ListByUser(uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// Get returns one video
func (h *VideoHandler) Get(c *gin.Context) {
	video, ok := h.ownedVideo(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, video)
}

// Delete removes a video row and its local file
func (h *VideoHandler) Delete(c *gin.Context) {
	video, ok := h.ownedVideo(c)
	if !ok {
		return
	}

	if video.FilePath != nil {
		if err := os.Remove(filepath.Join(h.uploadDir, *video.FilePath)); err != nil && !os.IsNotExist(err) {
			log.Printf("videos: removing file failed: %v", err)
		}
	}

	if err := h.videoRepo.Delete(video.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Video deleted"})
}

// channelOutcome is the wire form of a per-channel publish result.
type channelOutcome struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	ExternalID string    `json:"external_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Publish uploads the video to the requested channels.
func (h *VideoHandler) Publish(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	video, ok := h.ownedVideo(c)
	if !ok {
		return
	}

	var req models.PublishVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if !h.allowAction(c, uid, "publish") {
		return
	}

	result, err := h.orchestrator.PublishVideo(c.Request.Context(), uid, video.ID, req.ChannelIDs, req.Privacy, req.ScheduledTime)
	if err != nil {
		respondError(c, err)
		return
	}

	outcomes := make([]channelOutcome, 0, len(result.Results))
	for _, r := range result.Results {
		o := channelOutcome{ChannelID: r.ChannelID, ExternalID: r.ExternalID}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		outcomes = append(outcomes, o)
	}

	if len(result.Published) > 0 {
		h.hub.Notify(uid, models.EventVideoPublished, gin.H{
			"video_id": video.ID,
			"channels": result.Published,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"published_channels": result.Published,
		"results":            outcomes,
	})
}

// SchedulePremiere creates a platform premiere for the video.
func (h *VideoHandler) SchedulePremiere(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	video, ok := h.ownedVideo(c)
	if !ok {
		return
	}

	var req models.SchedulePremiereRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if !h.allowAction(c, uid, "premiere") {
		return
	}

	externalID, err := h.orchestrator.SchedulePremiere(c.Request.Context(), uid, video.ID, req.ChannelID, req.ScheduledTime)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Notify(uid, models.EventPremiereScheduled, gin.H{
		"video_id":    video.ID,
		"channel_id":  req.ChannelID,
		"premiere_at": req.ScheduledTime,
		"external_id": externalID,
	})

	c.JSON(http.StatusOK, gin.H{
		"external_id": externalID,
		"premiere_at": req.ScheduledTime,
	})
}

// ownedVideo loads the :id video and enforces ownership; on failure it writes
// the response and returns ok=false.
func (h *VideoHandler) ownedVideo(c *gin.Context) (*models.Video, bool) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid video id")
		return nil, false
	}

	video, err := h.videoRepo.GetByID(videoID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if video.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return video, true
}

// allowAction applies the Redis token bucket when Redis is configured. The
// in-memory limiter still guards the route; this one survives restarts and is
// shared across instances.
func (h *VideoHandler) allowAction(c *gin.Context, userID uuid.UUID, action string) bool {
	if h.redis == nil {
		return true
	}
	allowed, err := h.redis.AllowAction(userID, action, 1, 5)
	if err != nil {
		log.Printf("videos: rate limiter unavailable: %v", err)
		return true
	}
	if !allowed {
		ErrorResponse(c, http.StatusTooManyRequests, "Rate limit exceeded")
		return false
	}
	return true
}
