package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/creatorcast/backend/internal/credentials"
	"github.com/creatorcast/backend/internal/events"
	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/creatorcast/backend/internal/publish"
	"github.com/creatorcast/backend/internal/repository"
	"github.com/creatorcast/backend/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StreamHandler struct {
	streamRepo   *repository.LiveStreamRepository
	videoRepo    *repository.VideoRepository
	orchestrator *publish.Orchestrator
	supervisor   *stream.Supervisor
	tokens       *credentials.Manager
	api          *platform.YouTube
	hub          *events.Hub
}

func NewStreamHandler(
	streamRepo *repository.LiveStreamRepository,
	videoRepo *repository.VideoRepository,
	orchestrator *publish.Orchestrator,
	supervisor *stream.Supervisor,
	tokens *credentials.Manager,
	api *platform.YouTube,
	hub *events.Hub,
) *StreamHandler {
	return &StreamHandler{
		streamRepo:   streamRepo,
		videoRepo:    videoRepo,
		orchestrator: orchestrator,
		supervisor:   supervisor,
		tokens:       tokens,
		api:          api,
		hub:          hub,
	}
}

// Create provisions a live broadcast with its ingestion endpoint.
func (h *StreamHandler) Create(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	var req models.CreateLiveStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	ls, err := h.orchestrator.CreateLiveStream(c.Request.Context(), uid, req)
	if err != nil {
		respondError(c, err)
		return
	}

	// The stream key travels only in this one response.
	c.JSON(http.StatusCreated, gin.H{
		"stream":        ls,
		"ingestion_url": ls.IngestionURL,
		"stream_key":    ls.StreamKey,
	})
}

// List returns the user's live streams
func (h *StreamHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	streams, err := h.streamRepo.ListByUser(uid)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"streams": streams})
}

// Status reports the persisted state plus whether a re-streaming process is
// active right now.
func (h *StreamHandler) Status(c *gin.Context) {
	ls, ok := h.ownedStream(c)
	if !ok {
		return
	}

	resp := models.StreamStatusResponse{
		StreamID: ls.ID,
		Status:   ls.Status,
		IsActive: h.supervisor.IsActive(ls.ID),
	}
	if info, ok := h.supervisor.GetInfo(ls.ID); ok {
		started := info.StartedAt
		resp.StartTime = &started
		path := info.FilePath
		resp.VideoPath = &path
	} else if ls.ActualStart != nil {
		resp.StartTime = ls.ActualStart
	}

	c.JSON(http.StatusOK, resp)
}

// Start launches the re-streaming process for a video-type stream.
func (h *StreamHandler) Start(c *gin.Context) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	ls, ok := h.ownedStream(c)
	if !ok {
		return
	}

	if ls.Type != models.StreamTypeVideo {
		ErrorResponse(c, http.StatusBadRequest, "Only video streams can be started; rtmp streams are fed by an external encoder")
		return
	}
	if ls.VideoID == nil || ls.RTMPURL == nil {
		ErrorResponse(c, http.StatusConflict, "Stream is not fully provisioned")
		return
	}

	// The body is optional; an empty body means loop=false.
	var req models.StartLiveStreamRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	video, err := h.videoRepo.GetByID(*ls.VideoID)
	if err != nil {
		respondError(c, err)
		return
	}
	if video.FilePath == nil {
		ErrorResponse(c, http.StatusConflict, "Video has no local file")
		return
	}

	if err := h.supervisor.Start(ls.ID, *video.FilePath, *ls.RTMPURL, req.Loop); err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	if err := h.streamRepo.MarkLive(ls.ID, now); err != nil {
		log.Printf("streams: marking %s live failed: %v", ls.ID, err)
	}

	h.hub.Notify(uid, models.EventStreamStarted, gin.H{"stream_id": ls.ID})

	c.JSON(http.StatusOK, gin.H{"message": "Stream started", "started_at": now})
}

// Stop terminates the re-streaming process and completes the broadcast.
func (h *StreamHandler) Stop(c *gin.Context) {
	ls, ok := h.ownedStream(c)
	if !ok {
		return
	}

	if err := h.supervisor.Stop(ls.ID); err != nil {
		respondError(c, err)
		return
	}

	// Best effort: end the broadcast platform-side so viewers see it finish.
	if ls.BroadcastID != nil {
		if token, err := h.tokens.ValidAccessToken(c.Request.Context(), ls.ChannelID); err == nil {
			if err := h.api.TransitionBroadcast(c.Request.Context(), token, *ls.BroadcastID, "complete"); err != nil {
				log.Printf("streams: completing broadcast %s failed: %v", *ls.BroadcastID, err)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stream stopping"})
}

// Delete removes the stream and its platform broadcast. An active stream must
// be stopped first.
func (h *StreamHandler) Delete(c *gin.Context) {
	ls, ok := h.ownedStream(c)
	if !ok {
		return
	}

	if h.supervisor.IsActive(ls.ID) {
		ErrorResponse(c, http.StatusConflict, "Stop the stream before deleting it")
		return
	}

	if ls.BroadcastID != nil {
		token, err := h.tokens.ValidAccessToken(c.Request.Context(), ls.ChannelID)
		if err == nil {
			if err := h.api.DeleteBroadcast(c.Request.Context(), token, *ls.BroadcastID); err != nil {
				log.Printf("streams: deleting broadcast %s failed: %v", *ls.BroadcastID, err)
			}
		} else {
			log.Printf("streams: no valid token for channel %s, skipping platform delete: %v", ls.ChannelID, err)
		}
	}

	if err := h.streamRepo.Delete(ls.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Stream deleted"})
}

// ownedStream loads the :id stream and enforces ownership; on failure it
// writes the response and returns ok=false.
func (h *StreamHandler) ownedStream(c *gin.Context) (*models.LiveStream, bool) {
	userID, _ := c.Get("user_id")
	uid := userID.(uuid.UUID)

	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid stream id")
		return nil, false
	}

	ls, err := h.streamRepo.GetByID(streamID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if ls.UserID != uid {
		ErrorResponse(c, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return ls, true
}
