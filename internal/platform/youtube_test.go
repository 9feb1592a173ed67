package platform

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
)

func TestBuildVideoResource_DefaultPrivacy(t *testing.T) {
	v := buildVideoResource(UploadParams{Title: "demo"})
	if v.Status.PrivacyStatus != "private" {
		t.Errorf("expected default privacy private, got %q", v.Status.PrivacyStatus)
	}
	if v.Status.PublishAt != "" {
		t.Errorf("expected no publish time, got %q", v.Status.PublishAt)
	}
}

func TestBuildVideoResource_RequestedPrivacy(t *testing.T) {
	v := buildVideoResource(UploadParams{Title: "demo", Privacy: "public"})
	if v.Status.PrivacyStatus != "public" {
		t.Errorf("expected public, got %q", v.Status.PrivacyStatus)
	}
}

func TestBuildVideoResource_ScheduledForcesPrivate(t *testing.T) {
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := buildVideoResource(UploadParams{Title: "demo", Privacy: "public", PublishAt: &at})

	if v.Status.PrivacyStatus != "private" {
		t.Errorf("scheduled upload must be private, got %q", v.Status.PrivacyStatus)
	}
	if v.Status.PublishAt != "2026-09-01T12:00:00Z" {
		t.Errorf("unexpected publish time %q", v.Status.PublishAt)
	}
}

func TestBuildVideoResource_Metadata(t *testing.T) {
	v := buildVideoResource(UploadParams{
		Title:       "demo",
		Description: "a description",
		Tags:        []string{"one", "two"},
	})
	if v.Snippet.Title != "demo" || v.Snippet.Description != "a description" {
		t.Errorf("snippet metadata not mapped: %+v", v.Snippet)
	}
	if len(v.Snippet.Tags) != 2 {
		t.Errorf("expected 2 tags, got %v", v.Snippet.Tags)
	}
}

func TestWrapLiveErr(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMatched bool
	}{
		{
			name: "live streaming disabled reason",
			err: &googleapi.Error{
				Code:   403,
				Errors: []googleapi.ErrorItem{{Reason: "liveStreamingNotEnabled"}},
			},
			wantMatched: true,
		},
		{
			name: "insufficient live permissions",
			err: &googleapi.Error{
				Code:   403,
				Errors: []googleapi.ErrorItem{{Reason: "insufficientLivePermissions"}},
			},
			wantMatched: true,
		},
		{
			name: "unrelated forbidden",
			err: &googleapi.Error{
				Code:   403,
				Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
			},
			wantMatched: false,
		},
		{
			name:        "plain error",
			err:         errors.New("boom"),
			wantMatched: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := wrapLiveErr(tt.err)
			if got := errors.Is(wrapped, ErrLiveStreamingNotEnabled); got != tt.wantMatched {
				t.Errorf("errors.Is(ErrLiveStreamingNotEnabled) = %v, want %v", got, tt.wantMatched)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited status", &googleapi.Error{Code: 429}, true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"rate limit reason", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"forbidden", &googleapi.Error{Code: 403}, false},
		{"not found", &googleapi.Error{Code: 404}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}
