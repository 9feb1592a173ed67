package stream

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

type exitEvent struct {
	streamID uuid.UUID
	exitCode *int
}

type supervisorFixture struct {
	sup   *Supervisor
	root  string
	exits chan exitEvent
}

func newSupervisorFixture(t *testing.T) *supervisorFixture {
	t.Helper()

	root := t.TempDir()
	exits := make(chan exitEvent, 8)

	sup := NewSupervisor(root, "ffmpeg", 2*time.Second, func(streamID uuid.UUID, exitCode *int) {
		exits <- exitEvent{streamID: streamID, exitCode: exitCode}
	})

	return &supervisorFixture{sup: sup, root: root, exits: exits}
}

func (f *supervisorFixture) writeVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.root, name)
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return name
}

// longRunning replaces the ffmpeg command with a sleeping placeholder.
func longRunning(string, string, string, bool) *exec.Cmd {
	return exec.Command("sleep", "60")
}

// exitsImmediately simulates a crash right after launch.
func exitsImmediately(string, string, string, bool) *exec.Cmd {
	return exec.Command("true")
}

func (f *supervisorFixture) waitExit(t *testing.T) exitEvent {
	t.Helper()
	select {
	case ev := <-f.exits:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit callback")
		return exitEvent{}
	}
}

func TestSupervisor_StartAndStop(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = longRunning
	name := f.writeVideo(t, "demo.mp4")
	id := uuid.New()

	if err := f.sup.Start(id, name, "rtmp://ingest.example/live/key", false); err != nil {
		t.Fatalf("start: %v", err)
	}

	if !f.sup.IsActive(id) {
		t.Fatal("expected stream to be active after start")
	}

	info, ok := f.sup.GetInfo(id)
	if !ok {
		t.Fatal("expected info for active stream")
	}
	if info.FilePath != filepath.Join(f.root, name) {
		t.Errorf("unexpected resolved path %q", info.FilePath)
	}

	if err := f.sup.Stop(id); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Registry entry is removed by Stop itself, not the exit event.
	if f.sup.IsActive(id) {
		t.Fatal("expected stream inactive immediately after stop")
	}

	ev := f.waitExit(t)
	if ev.streamID != id {
		t.Errorf("exit callback for wrong stream: %s", ev.streamID)
	}
}

func TestSupervisor_StartTwiceFails(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = longRunning
	name := f.writeVideo(t, "demo.mp4")
	id := uuid.New()

	if err := f.sup.Start(id, name, "rtmp://ingest.example/live/key", true); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer f.sup.StopAll()

	err := f.sup.Start(id, name, "rtmp://ingest.example/live/key", true)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if got := len(f.sup.ListActive()); got != 1 {
		t.Errorf("expected exactly 1 tracked process, got %d", got)
	}
}

func TestSupervisor_StopNotRunning(t *testing.T) {
	f := newSupervisorFixture(t)

	err := f.sup.Stop(uuid.New())
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSupervisor_FileNotFound(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = longRunning

	err := f.sup.Start(uuid.New(), "missing.mp4", "rtmp://ingest.example/live/key", false)
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestSupervisor_PathTraversalRejected(t *testing.T) {
	f := newSupervisorFixture(t)
	launched := false
	f.sup.buildCmd = func(string, string, string, bool) *exec.Cmd {
		launched = true
		return exec.Command("sleep", "60")
	}

	err := f.sup.Start(uuid.New(), "../../../../../../etc/passwd", "rtmp://ingest.example/live/key", false)
	if !errors.Is(err, ErrPathOutsideRoot) {
		t.Fatalf("expected ErrPathOutsideRoot, got %v", err)
	}
	if launched {
		t.Fatal("process must never be spawned for a traversal path")
	}
}

func TestSupervisor_SymlinkEscapeRejected(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = longRunning

	outside := t.TempDir()
	target := filepath.Join(outside, "escape.mp4")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	if err := os.Symlink(target, filepath.Join(f.root, "inside.mp4")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	err := f.sup.Start(uuid.New(), "inside.mp4", "rtmp://ingest.example/live/key", false)
	if !errors.Is(err, ErrPathOutsideRoot) {
		t.Fatalf("expected ErrPathOutsideRoot, got %v", err)
	}
}

func TestSupervisor_CrashReconciliation(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = exitsImmediately
	name := f.writeVideo(t, "demo.mp4")
	id := uuid.New()

	if err := f.sup.Start(id, name, "rtmp://ingest.example/live/key", false); err != nil {
		t.Fatalf("start: %v", err)
	}

	ev := f.waitExit(t)
	if ev.streamID != id {
		t.Fatalf("exit callback for wrong stream: %s", ev.streamID)
	}
	if ev.exitCode == nil || *ev.exitCode != 0 {
		t.Errorf("expected exit code 0, got %v", ev.exitCode)
	}

	// After the crash the registry must be clean and Stop must refuse.
	if f.sup.IsActive(id) {
		t.Fatal("expected stream inactive after crash")
	}
	if err := f.sup.Stop(id); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after crash, got %v", err)
	}
}

func TestSupervisor_StopAll(t *testing.T) {
	f := newSupervisorFixture(t)
	f.sup.buildCmd = longRunning
	name := f.writeVideo(t, "demo.mp4")

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if err := f.sup.Start(id, name, "rtmp://ingest.example/live/key", false); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}

	f.sup.StopAll()

	if got := len(f.sup.ListActive()); got != 0 {
		t.Errorf("expected no active streams after StopAll, got %d", got)
	}
}
