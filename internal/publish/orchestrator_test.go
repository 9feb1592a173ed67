package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creatorcast/backend/internal/credentials"
	"github.com/creatorcast/backend/internal/models"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/google/uuid"
)

type fakePlatform struct {
	uploads    int
	uploadErr  map[string]error // keyed by access token
	nextID     int
	callOrder  []string
	broadcasts int
	ingestions int
	binds      int
	bindArgs   [2]string
}

func (f *fakePlatform) UploadVideo(_ context.Context, token string, media io.Reader, _ platform.UploadParams) (string, error) {
	f.uploads++
	f.callOrder = append(f.callOrder, "upload")
	io.Copy(io.Discard, media)
	if err := f.uploadErr[token]; err != nil {
		return "", err
	}
	f.nextID++
	return fmt.Sprintf("ext-%d", f.nextID), nil
}

func (f *fakePlatform) CreateBroadcast(_ context.Context, _, _, _ string, _ time.Time, _ string) (string, error) {
	f.broadcasts++
	f.callOrder = append(f.callOrder, "broadcast")
	return "bc-1", nil
}

func (f *fakePlatform) CreateIngestionStream(_ context.Context, _, _ string) (*platform.IngestionInfo, error) {
	f.ingestions++
	f.callOrder = append(f.callOrder, "stream")
	return &platform.IngestionInfo{
		StreamID:     "ing-1",
		IngestionURL: "rtmp://a.rtmp.example.com/live2",
		StreamKey:    "abcd-efgh",
	}, nil
}

func (f *fakePlatform) BindBroadcastToStream(_ context.Context, _, broadcastID, streamID string) error {
	f.binds++
	f.callOrder = append(f.callOrder, "bind")
	f.bindArgs = [2]string{broadcastID, streamID}
	return nil
}

type fakeTokens struct {
	calls  int
	tokens map[uuid.UUID]string
	errs   map[uuid.UUID]error
}

func (f *fakeTokens) ValidAccessToken(_ context.Context, channelID uuid.UUID) (string, error) {
	f.calls++
	if err := f.errs[channelID]; err != nil {
		return "", err
	}
	return f.tokens[channelID], nil
}

type fakeVideos struct {
	videos   map[uuid.UUID]*models.Video
	statuses []models.VideoStatus

	markedID       uuid.UUID
	markedChannels []uuid.UUID
	markedExternal *string
	markCalls      int

	premiereVideo   uuid.UUID
	premiereChannel uuid.UUID
	premiereAt      time.Time
	premiereExtID   string
	premiereCalls   int
}

func (f *fakeVideos) GetByID(id uuid.UUID) (*models.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func (f *fakeVideos) UpdateStatus(id uuid.UUID, status models.VideoStatus) error {
	f.statuses = append(f.statuses, status)
	if v, ok := f.videos[id]; ok {
		v.Status = status
	}
	return nil
}

func (f *fakeVideos) MarkPublished(id uuid.UUID, channels []uuid.UUID, externalID *string) error {
	f.markCalls++
	f.markedID = id
	f.markedChannels = channels
	f.markedExternal = externalID
	return nil
}

func (f *fakeVideos) SetPremiere(id, channelID uuid.UUID, at time.Time, externalID string) error {
	f.premiereCalls++
	f.premiereVideo = id
	f.premiereChannel = channelID
	f.premiereAt = at
	f.premiereExtID = externalID
	return nil
}

type fakeChannels struct {
	channels map[uuid.UUID]*models.Channel
}

func (f *fakeChannels) GetByID(id uuid.UUID) (*models.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return ch, nil
}

type fakeStreams struct {
	created []*models.LiveStream
}

func (f *fakeStreams) Create(s *models.LiveStream) error {
	f.created = append(f.created, s)
	return nil
}

type fixture struct {
	orch     *Orchestrator
	platform *fakePlatform
	tokens   *fakeTokens
	videos   *fakeVideos
	channels *fakeChannels
	streams  *fakeStreams

	userID   uuid.UUID
	videoID  uuid.UUID
	chanA    uuid.UUID
	chanB    uuid.UUID
	filePath string
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root := t.TempDir()
	filePath := filepath.Join(root, "video.mp4")
	if err := os.WriteFile(filePath, []byte("fake media"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	userID := uuid.New()
	videoID := uuid.New()
	chanA := uuid.New()
	chanB := uuid.New()

	rel := "video.mp4"
	videos := &fakeVideos{videos: map[uuid.UUID]*models.Video{
		videoID: {
			ID:       videoID,
			UserID:   userID,
			Title:    "My Video",
			Tags:     []string{"go"},
			FilePath: &rel,
			Status:   models.VideoStatusDraft,
		},
	}}
	channels := &fakeChannels{channels: map[uuid.UUID]*models.Channel{
		chanA: {ID: chanA, UserID: userID, Title: "Channel A"},
		chanB: {ID: chanB, UserID: userID, Title: "Channel B"},
	}}
	tokens := &fakeTokens{tokens: map[uuid.UUID]string{
		chanA: "tok-a",
		chanB: "tok-b",
	}}
	api := &fakePlatform{uploadErr: map[string]error{}}
	streams := &fakeStreams{}

	orch := NewOrchestrator(api, tokens, videos, channels, streams, root)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	orch.now = func() time.Time { return now }

	return &fixture{
		orch:     orch,
		platform: api,
		tokens:   tokens,
		videos:   videos,
		channels: channels,
		streams:  streams,
		userID:   userID,
		videoID:  videoID,
		chanA:    chanA,
		chanB:    chanB,
		filePath: filePath,
		now:      now,
	}
}

func TestPublishVideoMissingFileMakesNoExternalCalls(t *testing.T) {
	fx := newFixture(t)
	fx.videos.videos[fx.videoID].FilePath = nil

	_, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA}, "public", nil)
	if !errors.Is(err, ErrFileMissing) {
		t.Fatalf("expected ErrFileMissing, got %v", err)
	}
	if fx.platform.uploads != 0 {
		t.Errorf("expected 0 uploads, got %d", fx.platform.uploads)
	}
	if fx.tokens.calls != 0 {
		t.Errorf("expected 0 token lookups, got %d", fx.tokens.calls)
	}
}

func TestPublishVideoForeignChannelFailsClosed(t *testing.T) {
	fx := newFixture(t)
	foreign := uuid.New()
	fx.channels.channels[foreign] = &models.Channel{ID: foreign, UserID: uuid.New()}

	_, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA, foreign}, "public", nil)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if fx.platform.uploads != 0 {
		t.Errorf("expected no uploads when any channel is foreign, got %d", fx.platform.uploads)
	}
	if fx.videos.markCalls != 0 {
		t.Errorf("video must not be marked published, got %d mark calls", fx.videos.markCalls)
	}
}

func TestPublishVideoForeignVideoFailsClosed(t *testing.T) {
	fx := newFixture(t)
	fx.videos.videos[fx.videoID].UserID = uuid.New()

	_, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA}, "public", nil)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if fx.platform.uploads != 0 {
		t.Errorf("expected no uploads, got %d", fx.platform.uploads)
	}
}

func TestPublishVideoSuccessMarksAndRemovesFile(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA, fx.chanB}, "public", nil)
	if err != nil {
		t.Fatalf("PublishVideo: %v", err)
	}

	if len(result.Published) != 2 {
		t.Fatalf("expected 2 published channels, got %d", len(result.Published))
	}
	if fx.videos.markCalls != 1 {
		t.Fatalf("expected 1 mark call, got %d", fx.videos.markCalls)
	}
	if len(fx.videos.markedChannels) != 2 {
		t.Errorf("expected both channels recorded, got %v", fx.videos.markedChannels)
	}
	if fx.videos.markedExternal == nil || *fx.videos.markedExternal != result.Results[0].ExternalID {
		t.Errorf("expected first external id on record, got %v", fx.videos.markedExternal)
	}
	if _, err := os.Stat(fx.filePath); !os.IsNotExist(err) {
		t.Errorf("expected local file removed after publish")
	}
}

func TestPublishVideoPartialFailureKeepsGoing(t *testing.T) {
	fx := newFixture(t)
	fx.tokens.errs = map[uuid.UUID]error{fx.chanB: credentials.ErrReauthRequired}

	result, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA, fx.chanB}, "public", nil)
	if err != nil {
		t.Fatalf("PublishVideo: %v", err)
	}

	if len(result.Published) != 1 || result.Published[0] != fx.chanA {
		t.Fatalf("expected only channel A published, got %v", result.Published)
	}
	if len(fx.videos.markedChannels) != 1 || fx.videos.markedChannels[0] != fx.chanA {
		t.Errorf("record must list only succeeded channels, got %v", fx.videos.markedChannels)
	}

	var failed *ChannelResult
	for i := range result.Results {
		if result.Results[i].ChannelID == fx.chanB {
			failed = &result.Results[i]
		}
	}
	if failed == nil || !errors.Is(failed.Err, credentials.ErrReauthRequired) {
		t.Errorf("channel B result must carry the token error, got %+v", failed)
	}
	if fx.platform.uploads != 1 {
		t.Errorf("expected exactly 1 upload, got %d", fx.platform.uploads)
	}
}

func TestPublishVideoUploadFailureDoesNotAbortOthers(t *testing.T) {
	fx := newFixture(t)
	fx.platform.uploadErr["tok-a"] = errors.New("quota exceeded")

	result, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA, fx.chanB}, "public", nil)
	if err != nil {
		t.Fatalf("PublishVideo: %v", err)
	}
	if fx.platform.uploads != 2 {
		t.Errorf("expected both uploads attempted, got %d", fx.platform.uploads)
	}
	if len(result.Published) != 1 || result.Published[0] != fx.chanB {
		t.Errorf("expected only channel B published, got %v", result.Published)
	}
}

func TestPublishVideoAllChannelsFailKeepsFile(t *testing.T) {
	fx := newFixture(t)
	fx.platform.uploadErr["tok-a"] = errors.New("quota exceeded")
	fx.platform.uploadErr["tok-b"] = errors.New("quota exceeded")

	result, err := fx.orch.PublishVideo(context.Background(), fx.userID, fx.videoID, []uuid.UUID{fx.chanA, fx.chanB}, "public", nil)
	if err != nil {
		t.Fatalf("PublishVideo: %v", err)
	}
	if len(result.Published) != 0 {
		t.Fatalf("expected no published channels, got %v", result.Published)
	}
	if fx.videos.markCalls != 0 {
		t.Errorf("video must not be marked published, got %d mark calls", fx.videos.markCalls)
	}
	if fx.videos.videos[fx.videoID].Status != models.VideoStatusFailed {
		t.Errorf("status %s, want failed", fx.videos.videos[fx.videoID].Status)
	}
	if _, err := os.Stat(fx.filePath); err != nil {
		t.Errorf("local file must survive a fully failed publish: %v", err)
	}
}

func TestSchedulePremiereTooSoon(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.orch.SchedulePremiere(context.Background(), fx.userID, fx.videoID, fx.chanA, fx.now.Add(2*time.Minute))
	if !errors.Is(err, ErrPremiereTooSoon) {
		t.Fatalf("expected ErrPremiereTooSoon, got %v", err)
	}
	if fx.platform.uploads != 0 || fx.tokens.calls != 0 {
		t.Errorf("expected no external activity, uploads=%d tokens=%d", fx.platform.uploads, fx.tokens.calls)
	}
}

func TestSchedulePremiereSuccess(t *testing.T) {
	fx := newFixture(t)
	startAt := fx.now.Add(30 * time.Minute)

	extID, err := fx.orch.SchedulePremiere(context.Background(), fx.userID, fx.videoID, fx.chanA, startAt)
	if err != nil {
		t.Fatalf("SchedulePremiere: %v", err)
	}
	if extID == "" {
		t.Fatal("expected external id")
	}
	if fx.videos.premiereCalls != 1 {
		t.Fatalf("expected premiere persisted once, got %d", fx.videos.premiereCalls)
	}
	if fx.videos.premiereChannel != fx.chanA || !fx.videos.premiereAt.Equal(startAt) {
		t.Errorf("premiere persisted with wrong args: channel=%s at=%s", fx.videos.premiereChannel, fx.videos.premiereAt)
	}
	if fx.videos.premiereExtID != extID {
		t.Errorf("persisted external id %q != returned %q", fx.videos.premiereExtID, extID)
	}
	if _, err := os.Stat(fx.filePath); !os.IsNotExist(err) {
		t.Errorf("expected local file removed after premiere")
	}
}

func TestSchedulePremiereUploadErrorKeepsFile(t *testing.T) {
	fx := newFixture(t)
	fx.platform.uploadErr["tok-a"] = errors.New("upload failed")

	_, err := fx.orch.SchedulePremiere(context.Background(), fx.userID, fx.videoID, fx.chanA, fx.now.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error")
	}
	if fx.videos.premiereCalls != 0 {
		t.Errorf("premiere must not persist on upload failure")
	}
	if _, err := os.Stat(fx.filePath); err != nil {
		t.Errorf("local file must survive a failed premiere: %v", err)
	}
}

func TestCreateLiveStreamOrderAndRTMPURL(t *testing.T) {
	fx := newFixture(t)

	stream, err := fx.orch.CreateLiveStream(context.Background(), fx.userID, models.CreateLiveStreamRequest{
		ChannelID:      fx.chanA,
		Title:          "Launch Party",
		ScheduledStart: fx.now.Add(time.Hour),
		Type:           models.StreamTypeRTMP,
	})
	if err != nil {
		t.Fatalf("CreateLiveStream: %v", err)
	}

	want := []string{"broadcast", "stream", "bind"}
	if len(fx.platform.callOrder) != len(want) {
		t.Fatalf("call order %v, want %v", fx.platform.callOrder, want)
	}
	for i, op := range want {
		if fx.platform.callOrder[i] != op {
			t.Fatalf("call order %v, want %v", fx.platform.callOrder, want)
		}
	}
	if fx.platform.bindArgs != [2]string{"bc-1", "ing-1"} {
		t.Errorf("bind args %v", fx.platform.bindArgs)
	}

	if stream.RTMPURL == nil || *stream.RTMPURL != "rtmp://a.rtmp.example.com/live2/abcd-efgh" {
		t.Errorf("rtmp url: %v", stream.RTMPURL)
	}
	if stream.Status != models.LiveStreamStatusCreated {
		t.Errorf("status %s, want created", stream.Status)
	}
	if stream.Privacy != "private" {
		t.Errorf("privacy %q, want default private", stream.Privacy)
	}
	if len(fx.streams.created) != 1 {
		t.Fatalf("expected stream persisted, got %d", len(fx.streams.created))
	}
}

func TestCreateLiveStreamVideoTypeRequiresVideoID(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.orch.CreateLiveStream(context.Background(), fx.userID, models.CreateLiveStreamRequest{
		ChannelID:      fx.chanA,
		Title:          "Rerun",
		ScheduledStart: fx.now.Add(time.Hour),
		Type:           models.StreamTypeVideo,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if fx.platform.broadcasts != 0 {
		t.Errorf("expected no broadcast created, got %d", fx.platform.broadcasts)
	}
}

func TestCreateLiveStreamForeignVideoRejected(t *testing.T) {
	fx := newFixture(t)
	foreignVideo := uuid.New()
	fx.videos.videos[foreignVideo] = &models.Video{ID: foreignVideo, UserID: uuid.New()}

	_, err := fx.orch.CreateLiveStream(context.Background(), fx.userID, models.CreateLiveStreamRequest{
		ChannelID:      fx.chanA,
		Title:          "Rerun",
		ScheduledStart: fx.now.Add(time.Hour),
		Type:           models.StreamTypeVideo,
		VideoID:        &foreignVideo,
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if fx.platform.broadcasts != 0 {
		t.Errorf("expected no broadcast created, got %d", fx.platform.broadcasts)
	}
}
