package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types pushed to connected clients.
const (
	EventStreamStarted     = "stream.started"
	EventStreamEnded       = "stream.ended"
	EventVideoPublished    = "video.published"
	EventPremiereScheduled = "premiere.scheduled"
	EventError             = "error"
)

// WSEvent is the envelope for every message pushed over the websocket.
type WSEvent struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
}

// UserEvent wraps a WSEvent with its target user for cross-instance fan-out.
type UserEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Event  WSEvent   `json:"event"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
}
