// Package platform wraps every call to the external video platform API behind
// typed operations, so the orchestrator never touches raw API resources.
package platform

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/creatorcast/backend/internal/retry"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ChannelInfo is a platform channel with its public statistics.
type ChannelInfo struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	SubscriberCount int64  `json:"subscriber_count"`
	VideoCount      int64  `json:"video_count"`
}

// UploadParams describes a video upload. When PublishAt is set the platform
// treats the upload as scheduled (or, equivalently, a premiere) and the
// privacy is forced to private; see buildVideoResource.
type UploadParams struct {
	Title         string
	Description   string
	Tags          []string
	Privacy       string
	PublishAt     *time.Time
	ThumbnailPath string
}

// IngestionInfo identifies a created ingestion endpoint.
type IngestionInfo struct {
	StreamID     string
	IngestionURL string
	StreamKey    string
}

// YouTube drives the YouTube Data and Live APIs. Each operation takes the
// access token to act under; token lifecycle belongs to the credentials
// manager, not here.
type YouTube struct {
	retryCfg retry.Config

	// newService is swapped out in tests.
	newService func(ctx context.Context, accessToken string) (*youtube.Service, error)
}

func NewYouTube() *YouTube {
	return &YouTube{
		retryCfg:   retry.DefaultConfig(),
		newService: newServiceForToken,
	}
}

func newServiceForToken(ctx context.Context, accessToken string) (*youtube.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := youtube.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

// ListChannels returns the authenticated user's channels with statistics.
func (y *YouTube) ListChannels(ctx context.Context, accessToken string) ([]ChannelInfo, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var out []ChannelInfo
	err = retry.Do(ctx, y.retryCfg, isTransient, func(ctx context.Context) error {
		resp, err := svc.Channels.List([]string{"snippet", "statistics"}).Mine(true).Context(ctx).Do()
		if err != nil {
			return err
		}

		out = out[:0]
		for _, ch := range resp.Items {
			info := ChannelInfo{ID: ch.Id}
			if ch.Snippet != nil {
				info.Title = ch.Snippet.Title
				if ch.Snippet.Thumbnails != nil && ch.Snippet.Thumbnails.Default != nil {
					info.AvatarURL = ch.Snippet.Thumbnails.Default.Url
				}
			}
			if ch.Statistics != nil {
				info.SubscriberCount = int64(ch.Statistics.SubscriberCount)
				info.VideoCount = int64(ch.Statistics.VideoCount)
			}
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return out, nil
}

// buildVideoResource maps upload params onto the API video resource. A future
// publish time forces privacy to private: the platform rejects scheduled
// publishing on public uploads, so the caller's requested privacy is accepted
// for interface symmetry but overridden. This is documented platform
// behavior, not a bug.
func buildVideoResource(p UploadParams) *youtube.Video {
	status := &youtube.VideoStatus{PrivacyStatus: p.Privacy}
	if status.PrivacyStatus == "" {
		status.PrivacyStatus = "private"
	}
	if p.PublishAt != nil {
		status.PrivacyStatus = "private"
		status.PublishAt = p.PublishAt.UTC().Format(time.RFC3339)
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
		},
		Status: status,
	}
}

// UploadVideo uploads metadata plus the media binary and returns the external
// video id. A thumbnail failure does not roll back the upload; it is logged
// and the upload still counts as successful. Uploads are not retried: the
// media reader is consumed on the first attempt.
func (y *YouTube) UploadVideo(ctx context.Context, accessToken string, media io.Reader, p UploadParams) (string, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	video, err := svc.Videos.Insert([]string{"snippet", "status"}, buildVideoResource(p)).
		Media(media).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}

	if p.ThumbnailPath != "" {
		if err := y.setThumbnail(ctx, svc, video.Id, p.ThumbnailPath); err != nil {
			log.Printf("youtube: thumbnail upload failed for video %s: %v", video.Id, err)
		}
	}

	return video.Id, nil
}

func (y *YouTube) setThumbnail(ctx context.Context, svc *youtube.Service, videoID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = svc.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	return err
}

// CreateBroadcast creates a live broadcast container with auto-start and
// auto-stop enabled, returning the broadcast id.
func (y *YouTube) CreateBroadcast(ctx context.Context, accessToken, title, description string, start time.Time, privacy string) (string, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return "", err
	}

	broadcast := &youtube.LiveBroadcast{
		Snippet: &youtube.LiveBroadcastSnippet{
			Title:              title,
			Description:        description,
			ScheduledStartTime: start.UTC().Format(time.RFC3339),
		},
		Status: &youtube.LiveBroadcastStatus{PrivacyStatus: privacy},
		ContentDetails: &youtube.LiveBroadcastContentDetails{
			EnableAutoStart: true,
			EnableAutoStop:  true,
		},
	}

	resp, err := svc.LiveBroadcasts.Insert([]string{"snippet", "status", "contentDetails"}, broadcast).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create broadcast: %w", wrapLiveErr(err))
	}
	return resp.Id, nil
}

// CreateIngestionStream creates an RTMP ingestion endpoint with a fixed
// 30fps/1080p encoding profile and returns its address and stream key.
func (y *YouTube) CreateIngestionStream(ctx context.Context, accessToken, title string) (*IngestionInfo, error) {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	stream := &youtube.LiveStream{
		Snippet: &youtube.LiveStreamSnippet{Title: title},
		Cdn: &youtube.CdnSettings{
			FrameRate:     "30fps",
			IngestionType: "rtmp",
			Resolution:    "1080p",
		},
	}

	resp, err := svc.LiveStreams.Insert([]string{"snippet", "cdn", "contentDetails"}, stream).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("create ingestion stream: %w", wrapLiveErr(err))
	}

	return &IngestionInfo{
		StreamID:     resp.Id,
		IngestionURL: resp.Cdn.IngestionInfo.IngestionAddress,
		StreamKey:    resp.Cdn.IngestionInfo.StreamName,
	}, nil
}

// BindBroadcastToStream associates a broadcast with an ingestion stream. Both
// must already exist.
func (y *YouTube) BindBroadcastToStream(ctx context.Context, accessToken, broadcastID, streamID string) error {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, y.retryCfg, isTransient, func(ctx context.Context) error {
		_, err := svc.LiveBroadcasts.Bind(broadcastID, []string{"id", "contentDetails"}).
			StreamId(streamID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("bind broadcast %s to stream %s: %w", broadcastID, streamID, wrapLiveErr(err))
	}
	return nil
}

// TransitionBroadcast moves a broadcast through testing -> live -> complete.
func (y *YouTube) TransitionBroadcast(ctx context.Context, accessToken, broadcastID, status string) error {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, y.retryCfg, isTransient, func(ctx context.Context) error {
		_, err := svc.LiveBroadcasts.Transition(status, broadcastID, []string{"status"}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("transition broadcast %s to %s: %w", broadcastID, status, err)
	}
	return nil
}

// DeleteBroadcast removes the broadcast on the platform side.
func (y *YouTube) DeleteBroadcast(ctx context.Context, accessToken, broadcastID string) error {
	svc, err := y.newService(ctx, accessToken)
	if err != nil {
		return err
	}

	if err := svc.LiveBroadcasts.Delete(broadcastID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete broadcast %s: %w", broadcastID, err)
	}
	return nil
}
