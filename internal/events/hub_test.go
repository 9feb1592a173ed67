package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
)

func newTestHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client, 1),
		unregister: make(chan *Client, 1),
	}
}

func TestHubNotifyDeliversToConnectedUser(t *testing.T) {
	h := newTestHub()

	id1 := uuid.New()
	id2 := uuid.New()

	// Use actual Client struct but only use the send channel for assertion
	c1 := &Client{userID: id1, send: make(chan []byte, 4)}
	c2 := &Client{userID: id2, send: make(chan []byte, 4)}

	h.clients[id1] = c1
	h.clients[id2] = c2

	h.Notify(id1, models.EventVideoPublished, map[string]string{"video_id": "abc"})

	select {
	case b := <-c1.send:
		var got models.WSEvent
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Event != models.EventVideoPublished {
			t.Fatalf("unexpected event type: %s", got.Event)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for event to user 1")
	}

	// The other user must not receive it.
	select {
	case b := <-c2.send:
		t.Fatalf("user 2 unexpectedly received %s", b)
	default:
	}
}

func TestHubNotifyUnknownUserIsNoop(t *testing.T) {
	h := newTestHub()
	// Must not panic or block.
	h.Notify(uuid.New(), models.EventStreamEnded, nil)
}

func TestHubNotifyFullBufferDoesNotBlock(t *testing.T) {
	h := newTestHub()

	id := uuid.New()
	c := &Client{userID: id, send: make(chan []byte)} // unbuffered, no reader
	h.clients[id] = c

	done := make(chan struct{})
	go func() {
		h.Notify(id, models.EventStreamStarted, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a stalled client")
	}
}

func TestIsUserConnected(t *testing.T) {
	h := newTestHub()
	id := uuid.New()

	if h.IsUserConnected(id) {
		t.Fatal("expected not connected")
	}
	h.clients[id] = &Client{userID: id, send: make(chan []byte, 1)}
	if !h.IsUserConnected(id) {
		t.Fatal("expected connected")
	}
}
