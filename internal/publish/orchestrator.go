// Package publish sequences the credentials manager and the platform adapter
// into the three user-facing workflows: multi-channel publish, premiere
// scheduling, and live-stream provisioning.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/google/uuid"
)

var (
	// ErrNotOwner means the referenced video/channel/stream belongs to someone else.
	ErrNotOwner = errors.New("resource does not belong to user")

	// ErrFileMissing means the video has no file on disk (e.g. already published).
	ErrFileMissing = errors.New("video file not found")

	// ErrPremiereTooSoon means the requested premiere start violates the
	// platform's 5-minute minimum lead time.
	ErrPremiereTooSoon = errors.New("premiere must be scheduled at least 5 minutes in the future")
)

// minPremiereLead is the platform-imposed minimum lead time for premieres.
const minPremiereLead = 5 * time.Minute

type PlatformAPI interface {
	UploadVideo(ctx context.Context, accessToken string, media io.Reader, p platform.UploadParams) (string, error)
	CreateBroadcast(ctx context.Context, accessToken, title, description string, start time.Time, privacy string) (string, error)
	CreateIngestionStream(ctx context.Context, accessToken, title string) (*platform.IngestionInfo, error)
	BindBroadcastToStream(ctx context.Context, accessToken, broadcastID, streamID string) error
}

type TokenSource interface {
	ValidAccessToken(ctx context.Context, channelID uuid.UUID) (string, error)
}

type VideoStore interface {
	GetByID(id uuid.UUID) (*models.Video, error)
	UpdateStatus(id uuid.UUID, status models.VideoStatus) error
	MarkPublished(id uuid.UUID, channels []uuid.UUID, externalID *string) error
	SetPremiere(id uuid.UUID, channelID uuid.UUID, scheduledAt time.Time, externalID string) error
}

type ChannelStore interface {
	GetByID(id uuid.UUID) (*models.Channel, error)
}

type StreamStore interface {
	Create(s *models.LiveStream) error
}

type Orchestrator struct {
	platform   PlatformAPI
	tokens     TokenSource
	videos     VideoStore
	channels   ChannelStore
	streams    StreamStore
	uploadRoot string
	now        func() time.Time
}

func NewOrchestrator(api PlatformAPI, tokens TokenSource, videos VideoStore, channels ChannelStore, streams StreamStore, uploadRoot string) *Orchestrator {
	return &Orchestrator{
		platform:   api,
		tokens:     tokens,
		videos:     videos,
		channels:   channels,
		streams:    streams,
		uploadRoot: uploadRoot,
		now:        time.Now,
	}
}

// ChannelResult is the per-channel outcome of a multi-channel publish. The
// best-effort policy is explicit data: failed channels carry their error and
// are excluded from the success set.
type ChannelResult struct {
	ChannelID  uuid.UUID `json:"channel_id"`
	ExternalID string    `json:"external_id,omitempty"`
	Err        error     `json:"-"`
}

func (r ChannelResult) Succeeded() bool { return r.Err == nil }

// PublishResult aggregates a publish run. ExternalIDs keeps the full
// per-channel id map; the video record itself retains only the first id.
type PublishResult struct {
	Results     []ChannelResult
	Published   []uuid.UUID
	ExternalIDs map[uuid.UUID]string
}

// videoFile resolves the video's file path under the upload root and verifies
// the file is still on disk.
func (o *Orchestrator) videoFile(v *models.Video) (string, error) {
	if v.FilePath == nil || *v.FilePath == "" {
		return "", ErrFileMissing
	}
	path := *v.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.uploadRoot, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileMissing, *v.FilePath)
	}
	return path, nil
}

func (o *Orchestrator) thumbnailFile(v *models.Video) string {
	if v.ThumbnailPath == nil || *v.ThumbnailPath == "" {
		return ""
	}
	path := *v.ThumbnailPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.uploadRoot, path)
	}
	return path
}

// ownedVideo loads the video and checks ownership.
func (o *Orchestrator) ownedVideo(userID, videoID uuid.UUID) (*models.Video, error) {
	video, err := o.videos.GetByID(videoID)
	if err != nil {
		return nil, err
	}
	if video.UserID != userID {
		return nil, ErrNotOwner
	}
	return video, nil
}

// ownedChannel loads the channel and checks ownership.
func (o *Orchestrator) ownedChannel(userID, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := o.channels.GetByID(channelID)
	if err != nil {
		return nil, err
	}
	if ch.UserID != userID {
		return nil, ErrNotOwner
	}
	return ch, nil
}

// PublishVideo uploads the video to every requested channel. All preconditions
// (ownership of the video and of every channel, file presence) are checked
// fail-closed before the first external call. Per-channel upload failures are
// recorded and skipped; one channel's failure never aborts the others. After
// the fold the video is marked published with the channels that actually
// succeeded and the local file is removed best-effort.
func (o *Orchestrator) PublishVideo(ctx context.Context, userID, videoID uuid.UUID, channelIDs []uuid.UUID, privacy string, scheduledAt *time.Time) (*PublishResult, error) {
	video, err := o.ownedVideo(userID, videoID)
	if err != nil {
		return nil, err
	}

	path, err := o.videoFile(video)
	if err != nil {
		return nil, err
	}

	channels := make([]*models.Channel, 0, len(channelIDs))
	for _, id := range channelIDs {
		ch, err := o.ownedChannel(userID, id)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}

	if err := o.videos.UpdateStatus(videoID, models.VideoStatusProcessing); err != nil {
		log.Printf("publish: marking video %s processing failed: %v", videoID, err)
	}

	params := platform.UploadParams{
		Title:         video.Title,
		Description:   video.Description,
		Tags:          video.Tags,
		Privacy:       privacy,
		PublishAt:     scheduledAt,
		ThumbnailPath: o.thumbnailFile(video),
	}

	result := &PublishResult{ExternalIDs: make(map[uuid.UUID]string)}
	for _, ch := range channels {
		res := ChannelResult{ChannelID: ch.ID}

		token, err := o.tokens.ValidAccessToken(ctx, ch.ID)
		if err != nil {
			log.Printf("publish: skipping channel %s: %v", ch.ID, err)
			res.Err = err
			result.Results = append(result.Results, res)
			continue
		}

		f, err := os.Open(path)
		if err != nil {
			log.Printf("publish: skipping channel %s: %v", ch.ID, err)
			res.Err = err
			result.Results = append(result.Results, res)
			continue
		}

		externalID, err := o.platform.UploadVideo(ctx, token, f, params)
		f.Close()
		if err != nil {
			log.Printf("publish: upload to channel %s failed: %v", ch.ID, err)
			res.Err = err
			result.Results = append(result.Results, res)
			continue
		}

		res.ExternalID = externalID
		result.Results = append(result.Results, res)
		result.Published = append(result.Published, ch.ID)
		result.ExternalIDs[ch.ID] = externalID
	}

	// Zero successes keeps the file on disk for another attempt.
	if len(result.Published) == 0 {
		if err := o.videos.UpdateStatus(videoID, models.VideoStatusFailed); err != nil {
			return nil, fmt.Errorf("mark video failed: %w", err)
		}
		return result, nil
	}

	var firstID *string
	for _, res := range result.Results {
		if res.Succeeded() {
			id := res.ExternalID
			firstID = &id
			break
		}
	}

	if err := o.videos.MarkPublished(videoID, result.Published, firstID); err != nil {
		return nil, fmt.Errorf("mark video published: %w", err)
	}

	if err := os.Remove(path); err != nil {
		log.Printf("publish: failed to remove local file %s: %v", path, err)
	}

	return result, nil
}

// SchedulePremiere creates a platform-side premiere for the video on one
// channel. The local file is removed only after the remote premiere is
// confirmed and persisted.
func (o *Orchestrator) SchedulePremiere(ctx context.Context, userID, videoID, channelID uuid.UUID, startAt time.Time) (string, error) {
	if startAt.Before(o.now().Add(minPremiereLead)) {
		return "", ErrPremiereTooSoon
	}

	video, err := o.ownedVideo(userID, videoID)
	if err != nil {
		return "", err
	}
	if _, err := o.ownedChannel(userID, channelID); err != nil {
		return "", err
	}

	path, err := o.videoFile(video)
	if err != nil {
		return "", err
	}

	token, err := o.tokens.ValidAccessToken(ctx, channelID)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileMissing, path)
	}
	defer f.Close()

	externalID, err := o.platform.UploadVideo(ctx, token, f, platform.UploadParams{
		Title:         video.Title,
		Description:   video.Description,
		Tags:          video.Tags,
		PublishAt:     &startAt,
		ThumbnailPath: o.thumbnailFile(video),
	})
	if err != nil {
		return "", err
	}

	if err := o.videos.SetPremiere(videoID, channelID, startAt, externalID); err != nil {
		return "", fmt.Errorf("persist premiere: %w", err)
	}

	if err := os.Remove(path); err != nil {
		log.Printf("publish: failed to remove local file %s: %v", path, err)
	}

	return externalID, nil
}

// CreateLiveStream provisions a platform live broadcast: broadcast, ingestion
// stream, then bind, strictly in that order. The returned record is persisted
// with status created and the composed RTMP URL.
func (o *Orchestrator) CreateLiveStream(ctx context.Context, userID uuid.UUID, req models.CreateLiveStreamRequest) (*models.LiveStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if _, err := o.ownedChannel(userID, req.ChannelID); err != nil {
		return nil, err
	}
	if req.Type == models.StreamTypeVideo {
		if _, err := o.ownedVideo(userID, *req.VideoID); err != nil {
			return nil, err
		}
	}

	token, err := o.tokens.ValidAccessToken(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}

	privacy := req.Privacy
	if privacy == "" {
		privacy = "private"
	}

	broadcastID, err := o.platform.CreateBroadcast(ctx, token, req.Title, req.Description, req.ScheduledStart, privacy)
	if err != nil {
		return nil, err
	}

	ingestion, err := o.platform.CreateIngestionStream(ctx, token, req.Title)
	if err != nil {
		return nil, err
	}

	if err := o.platform.BindBroadcastToStream(ctx, token, broadcastID, ingestion.StreamID); err != nil {
		return nil, err
	}

	now := o.now()
	rtmpURL := ingestion.IngestionURL + "/" + ingestion.StreamKey
	scheduled := req.ScheduledStart
	stream := &models.LiveStream{
		ID:                uuid.New(),
		UserID:            userID,
		ChannelID:         req.ChannelID,
		Title:             req.Title,
		Description:       req.Description,
		Tags:              req.Tags,
		Type:              req.Type,
		VideoID:           req.VideoID,
		ScheduledStart:    &scheduled,
		BroadcastID:       &broadcastID,
		IngestionStreamID: &ingestion.StreamID,
		StreamKey:         &ingestion.StreamKey,
		IngestionURL:      &ingestion.IngestionURL,
		RTMPURL:           &rtmpURL,
		Status:            models.LiveStreamStatusCreated,
		Privacy:           privacy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := o.streams.Create(stream); err != nil {
		return nil, fmt.Errorf("persist live stream: %w", err)
	}

	return stream, nil
}
