// Package capture provides frame sources that decode video outside the process.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/andresmejia3/watchlist/internal/utils"
)

const megabyte = 1024 * 1024

// openTimeout bounds how long OpenFFmpeg waits for the first frame.
const openTimeout = 30 * time.Second

// StreamSource splits an MJPEG byte stream into frames on a background
// goroutine and keeps only the newest one. Read never blocks: it hands out the
// latest frame once, and reports false until a newer frame arrives, so a slow
// consumer silently skips frames instead of queueing them.
type StreamSource struct {
	cmd    *exec.Cmd
	stderr bytes.Buffer
	pipe   io.ReadCloser

	mu      sync.Mutex
	latest  []byte
	seq     int
	lastOut int
	at      time.Time
	err     error

	first     chan struct{}
	firstOnce sync.Once
	done      chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// OpenFFmpeg starts ffmpeg on input (file, URL or /dev/videoN) and returns once
// the first frame has been decoded. If ffmpeg exits before that, for example
// because the input cannot be opened, the error carries ffmpeg's own message.
func OpenFFmpeg(ctx context.Context, input string, fps int) (*StreamSource, error) {
	cmd := utils.NewFFmpegCmd(ctx, input, fps)
	s := newStreamSource()
	s.cmd = cmd
	cmd.Stderr = &s.stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	s.pipe = out
	go s.pump(out)

	timer := time.NewTimer(openTimeout)
	defer timer.Stop()
	select {
	case <-s.first:
		return s, nil
	case <-s.done:
		err := s.Close()
		if err == nil {
			err = s.Err()
		}
		if err == nil {
			err = fmt.Errorf("ffmpeg produced no frames")
		}
		return nil, fmt.Errorf("open %s: %w", input, err)
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("open %s: no frame within %v", input, openTimeout)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// NewStreamSource reads MJPEG frames from r.
func NewStreamSource(r io.Reader) *StreamSource {
	s := newStreamSource()
	go s.pump(r)
	return s
}

func newStreamSource() *StreamSource {
	return &StreamSource{first: make(chan struct{}), done: make(chan struct{})}
}

func (s *StreamSource) pump(r io.Reader) {
	defer close(s.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	for scanner.Scan() {
		frame := append([]byte(nil), scanner.Bytes()...)
		s.mu.Lock()
		s.latest = frame
		s.seq++
		s.at = time.Now()
		s.mu.Unlock()
		s.firstOnce.Do(func() { close(s.first) })
	}

	s.mu.Lock()
	s.err = scanner.Err()
	s.mu.Unlock()
}

// Read implements pipeline.Source.
func (s *StreamSource) Read() (types.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil || s.seq == s.lastOut {
		return types.Frame{}, false
	}
	s.lastOut = s.seq
	return types.Frame{Index: s.seq, Data: s.latest, Captured: s.at}, true
}

// Done is closed once the stream has ended.
func (s *StreamSource) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the stream, if any, once Done is closed.
func (s *StreamSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops ffmpeg and waits for the reader to finish. Anything ffmpeg wrote
// to stderr is returned as the error. Later calls return the same result.
func (s *StreamSource) Close() error {
	if s.cmd == nil {
		return nil
	}
	s.closeOnce.Do(func() { s.closeErr = s.stop() })
	return s.closeErr
}

func (s *StreamSource) stop() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.pipe != nil {
		s.pipe.Close()
	}
	<-s.done
	err := s.cmd.Wait()
	if s.stderr.Len() > 0 {
		return fmt.Errorf("ffmpeg: %s", bytes.TrimSpace(s.stderr.Bytes()))
	}
	// Killed on purpose; the exit status is expected.
	if _, ok := err.(*exec.ExitError); ok {
		return nil
	}
	return err
}
