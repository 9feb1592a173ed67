package events

import (
	"net/http/httptest"
	"sync"
	"testing"
)

func TestOriginCheckerEmptyListAllowsAll(t *testing.T) {
	check := originChecker(nil)

	r := httptest.NewRequest("GET", "/ws", nil)
	if !check(r) {
		t.Error("expected any origin to pass with no allow list")
	}
	r.Header.Set("Origin", "https://evil.example.net")
	if !check(r) {
		t.Error("expected any origin to pass with no allow list")
	}
}

func TestOriginCheckerMatching(t *testing.T) {
	check := originChecker([]string{"https://app.example.com", "*.example.org"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.example.com", true},
		{"https://dash.example.org", true},
		{"https://evil.example.net", false},
		{"", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}
}

// The checker must be safe under concurrent upgrades: each handler builds it
// once at construction and never mutates shared state afterwards.
func TestOriginCheckerConcurrent(t *testing.T) {
	h := NewHandler(nil, nil, []string{"https://app.example.com"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(allowed bool) {
			defer wg.Done()
			r := httptest.NewRequest("GET", "/ws", nil)
			if allowed {
				r.Header.Set("Origin", "https://app.example.com")
			} else {
				r.Header.Set("Origin", "https://evil.example.net")
			}
			if got := h.upgrader.CheckOrigin(r); got != allowed {
				t.Errorf("CheckOrigin = %v, want %v", got, allowed)
			}
		}(i%2 == 0)
	}
	wg.Wait()
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		pattern string
		origin  string
		want    bool
	}{
		{"https://app.example.com", "https://app.example.com", true},
		{"https://app.example.com", "https://other.example.com", false},
		{"*.example.com", "https://sub.example.com", true},
		{"*.example.com", "https://example.net", false},
	}
	for _, tt := range tests {
		if got := matchOrigin(tt.pattern, tt.origin); got != tt.want {
			t.Errorf("matchOrigin(%q, %q) = %v, want %v", tt.pattern, tt.origin, got, tt.want)
		}
	}
}
