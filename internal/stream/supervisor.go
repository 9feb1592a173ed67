// Package stream supervises the external re-streaming processes that push
// stored video files into live RTMP ingestion endpoints. At most one process
// runs per live-stream id; every exit, clean or crashed, is reported through a
// single callback so persisted state can be reconciled.
package stream

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRunning means a process for this stream id is already tracked.
	ErrAlreadyRunning = errors.New("stream is already running")

	// ErrNotRunning means no process is tracked for this stream id.
	ErrNotRunning = errors.New("stream is not running")

	// ErrFileNotFound means the resolved video file does not exist.
	ErrFileNotFound = errors.New("video file not found")

	// ErrPathOutsideRoot means the video path escapes the upload directory.
	ErrPathOutsideRoot = errors.New("video path escapes the upload directory")
)

const defaultStopTimeout = 5 * time.Second

// ExitFunc is invoked whenever a tracked process exits. exitCode is nil when
// the process failed to launch.
type ExitFunc func(streamID uuid.UUID, exitCode *int)

// Info is a read-only snapshot of a tracked process.
type Info struct {
	StreamID  uuid.UUID `json:"stream_id"`
	StartedAt time.Time `json:"started_at"`
	FilePath  string    `json:"file_path"`
	RTMPURL   string    `json:"-"`
}

type process struct {
	cmd       *exec.Cmd
	startedAt time.Time
	filePath  string
	rtmpURL   string
	done      chan struct{} // closed by the wait goroutine once the process exits
}

// Supervisor owns the registry of running re-streaming processes, keyed by
// stream id. The registry is authoritative only for the current instance;
// rows left 'live' by a previous instance are swept at boot by the caller.
type Supervisor struct {
	uploadRoot  string
	ffmpegPath  string
	stopTimeout time.Duration
	onExit      ExitFunc

	mu    sync.Mutex
	procs map[uuid.UUID]*process

	// buildCmd is swapped out in tests.
	buildCmd func(ffmpegPath, filePath, rtmpURL string, loop bool) *exec.Cmd
}

// NewSupervisor creates a supervisor. onExit is the single exit-reconciliation
// callback, registered once here and invoked for every tracked process exit.
func NewSupervisor(uploadRoot, ffmpegPath string, stopTimeout time.Duration, onExit ExitFunc) *Supervisor {
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Supervisor{
		uploadRoot:  uploadRoot,
		ffmpegPath:  ffmpegPath,
		stopTimeout: stopTimeout,
		onExit:      onExit,
		procs:       make(map[uuid.UUID]*process),
		buildCmd:    buildFFmpegCmd,
	}
}

// buildFFmpegCmd constructs the re-encode command with the fixed profile:
// H.264 video capped at 3000kbps with a 6000kbps buffer, AAC audio at
// 128kbps/44.1kHz, keyframe interval 50, FLV container.
func buildFFmpegCmd(ffmpegPath, filePath, rtmpURL string, loop bool) *exec.Cmd {
	args := []string{"-re"}
	if loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args,
		"-i", filePath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-maxrate", "3000k",
		"-bufsize", "6000k",
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-g", "50",
		"-f", "flv",
		rtmpURL,
	)
	return exec.Command(ffmpegPath, args...)
}

// resolvePath resolves the video path under the upload root and verifies the
// file exists and does not escape the root.
func (s *Supervisor) resolvePath(videoPath string) (string, error) {
	path := videoPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.uploadRoot, path)
	}
	path = filepath.Clean(path)

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, videoPath)
	}

	// Containment check through symlink resolution. If resolution itself
	// fails the existence check above stands on its own; log and continue.
	realRoot, rootErr := filepath.EvalSymlinks(s.uploadRoot)
	realPath, pathErr := filepath.EvalSymlinks(path)
	if rootErr != nil || pathErr != nil {
		log.Printf("supervisor: path containment check skipped for %s: %v %v", videoPath, rootErr, pathErr)
		return path, nil
	}
	if realPath != realRoot && !strings.HasPrefix(realPath, realRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, videoPath)
	}

	return path, nil
}

// Start launches a re-streaming process for the stream. It rejects a second
// start while one is tracked, validates the file path, and registers the exit
// watcher before returning.
func (s *Supervisor) Start(streamID uuid.UUID, videoPath, rtmpURL string, loop bool) error {
	path, err := s.resolvePath(videoPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.procs[streamID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, streamID)
	}

	cmd := s.buildCmd(s.ffmpegPath, path, rtmpURL, loop)
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		// Launch failure funnels through the same reconciliation path as a
		// crash, with a nil exit code.
		go s.onExit(streamID, nil)
		return fmt.Errorf("start re-streaming process: %w", err)
	}

	p := &process{
		cmd:       cmd,
		startedAt: time.Now(),
		filePath:  path,
		rtmpURL:   rtmpURL,
		done:      make(chan struct{}),
	}
	s.procs[streamID] = p
	s.mu.Unlock()

	log.Printf("supervisor: started stream %s (pid %d, file %s, loop %v)", streamID, cmd.Process.Pid, path, loop)
	go s.wait(streamID, p)
	return nil
}

// wait blocks until the process exits, removes it from the registry, and
// invokes the exit callback.
func (s *Supervisor) wait(streamID uuid.UUID, p *process) {
	err := p.cmd.Wait()
	close(p.done)

	s.mu.Lock()
	if cur, ok := s.procs[streamID]; ok && cur == p {
		delete(s.procs, streamID)
	}
	s.mu.Unlock()

	var exitCode *int
	if state := p.cmd.ProcessState; state != nil {
		code := state.ExitCode()
		exitCode = &code
	}
	if err != nil {
		log.Printf("supervisor: stream %s exited: %v", streamID, err)
	} else {
		log.Printf("supervisor: stream %s exited cleanly", streamID)
	}

	s.onExit(streamID, exitCode)
}

// Stop terminates the stream's process: SIGTERM first, SIGKILL after the
// grace period. The registry entry is removed immediately; the exit callback
// still fires from the wait goroutine.
func (s *Supervisor) Stop(streamID uuid.UUID) error {
	s.mu.Lock()
	p, ok := s.procs[streamID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, streamID)
	}
	delete(s.procs, streamID)
	s.mu.Unlock()

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("supervisor: SIGTERM for stream %s failed: %v", streamID, err)
	}

	select {
	case <-p.done:
	case <-time.After(s.stopTimeout):
		log.Printf("supervisor: stream %s did not exit within %s, killing", streamID, s.stopTimeout)
		if err := p.cmd.Process.Kill(); err != nil {
			log.Printf("supervisor: kill for stream %s failed: %v", streamID, err)
		}
	}

	return nil
}

// IsActive reports whether a process is tracked for the stream.
func (s *Supervisor) IsActive(streamID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[streamID]
	return ok
}

// GetInfo returns a snapshot of the tracked process, if any.
func (s *Supervisor) GetInfo(streamID uuid.UUID) (*Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procs[streamID]
	if !ok {
		return nil, false
	}
	return &Info{StreamID: streamID, StartedAt: p.startedAt, FilePath: p.filePath, RTMPURL: p.rtmpURL}, true
}

// ListActive returns snapshots of every tracked process.
func (s *Supervisor) ListActive() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, 0, len(s.procs))
	for id, p := range s.procs {
		out = append(out, Info{StreamID: id, StartedAt: p.startedAt, FilePath: p.filePath, RTMPURL: p.rtmpURL})
	}
	return out
}

// StopAll stops every tracked stream, isolating per-stream failures.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
			log.Printf("supervisor: stop %s failed: %v", id, err)
		}
	}
}
