package platform

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrLiveStreamingNotEnabled marks the platform's "live streaming not enabled
// for this channel" condition, which callers surface as its own actionable
// message. All other platform errors pass through verbatim.
var ErrLiveStreamingNotEnabled = errors.New("live streaming is not enabled for this channel")

// wrapLiveErr remaps the live-streaming-disabled condition and leaves
// everything else untouched.
func wrapLiveErr(err error) error {
	if err == nil {
		return nil
	}
	if isLiveStreamingDisabled(err) {
		return fmt.Errorf("%w: %v", ErrLiveStreamingNotEnabled, err)
	}
	return err
}

func isLiveStreamingDisabled(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "liveStreamingNotEnabled", "livePermissionBlocked", "insufficientLivePermissions":
			return true
		}
	}
	return false
}

// isTransient classifies platform errors for retry: rate limiting and server
// errors are retryable, everything else is permanent.
func isTransient(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError {
		return true
	}
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
			return true
		}
	}
	return false
}
