package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/creatorcast/backend/internal/credentials"
	"github.com/creatorcast/backend/internal/platform"
	"github.com/creatorcast/backend/internal/publish"
	"github.com/creatorcast/backend/internal/repository"
	"github.com/creatorcast/backend/internal/stream"
	"github.com/gin-gonic/gin"
)

// ErrorResponse sends a standardized error response and logs at caller if needed
func ErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps known sentinel errors to HTTP statuses. Unknown errors
// are logged and reported as a plain 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		ErrorResponse(c, http.StatusNotFound, "Not found")
	case errors.Is(err, publish.ErrNotOwner):
		ErrorResponse(c, http.StatusForbidden, "Access denied")
	case errors.Is(err, publish.ErrFileMissing):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, publish.ErrPremiereTooSoon):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, credentials.ErrReauthRequired):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, credentials.ErrCredentialsMissing):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, platform.ErrLiveStreamingNotEnabled):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, stream.ErrAlreadyRunning), errors.Is(err, stream.ErrNotRunning):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, stream.ErrFileNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, stream.ErrPathOutsideRoot):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		log.Printf("handlers: internal error: %v", err)
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}
