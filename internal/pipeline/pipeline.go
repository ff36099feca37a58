// Package pipeline runs the live surveillance loop: grab a frame, find and
// match faces, look up confirmed ones, alert, render, wait, repeat.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/watchlist/internal/store"
	"github.com/andresmejia3/watchlist/internal/types"
)

// DefaultDelay is the pause between the end of one frame and the next grab.
const DefaultDelay = 10 * time.Millisecond

// Source yields the most recent frame. ok is false when none is available.
type Source interface {
	Read() (frame types.Frame, ok bool)
	Close() error
}

// Detector finds and encodes the faces in a frame.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) ([]types.DetectedFace, error)
}

// Matcher compares an encoding with the gallery.
type Matcher interface {
	Match(probe []float32) types.MatchResult
	Confirmed(r types.MatchResult) bool
}

// Profiles looks up a criminal record by id.
type Profiles interface {
	Profile(ctx context.Context, id int) (*types.Profile, error)
}

// Alerter is told about every confirmed match.
type Alerter interface {
	Alert(ctx context.Context, s types.Sighting)
}

// Display renders a frame with its face overlays.
type Display interface {
	Render(ctx context.Context, frame types.Frame, overlays []types.Overlay) error
}

// Table receives one row per confirmed match that has a profile.
type Table interface {
	Insert(s types.Sighting)
}

// State of the loop.
type State int32

const (
	Idle State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks     int
	Frames    int
	Misses    int
	Faces     int
	Confirmed int
	Lookups   int
	// Raised counts alerts handed to the Alerter; it may drop some.
	Raised int
}

// Report describes one processed frame.
type Report struct {
	Frame     types.Frame
	Overlays  []types.Overlay
	Sightings []types.Sighting
	Confirmed []string
}

// App is the application context for a live session. It is built once at
// startup; Source, Detector and Matcher are required, the rest are optional.
type App struct {
	Source    Source
	Detector  Detector
	Matcher   Matcher
	Profiles  Profiles
	Alerter   Alerter
	Displays  []Display
	Table     Table
	Logger    *slog.Logger
	Delay     time.Duration
	MaxFrames int
	SessionID string

	state atomic.Int32
	stats Stats
}

// State reports whether a frame is currently being processed.
func (a *App) State() State { return State(a.state.Load()) }

// Stats returns a copy of the counters. Only call it from the loop's goroutine
// or after Run has returned.
func (a *App) Stats() Stats { return a.stats }

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Step handles a single tick. It returns false when no frame could be
// acquired, in which case nothing else happens.
func (a *App) Step(ctx context.Context) (Report, bool) {
	a.stats.Ticks++
	frame, ok := a.Source.Read()
	if !ok {
		a.stats.Misses++
		return Report{}, false
	}

	a.state.Store(int32(Processing))
	defer a.state.Store(int32(Idle))
	a.stats.Frames++

	log := a.logger().With("frame", frame.Index)
	rep := Report{Frame: frame}

	faces, err := a.Detector.Detect(ctx, frame)
	if err != nil {
		// Still render the plain frame so the preview does not freeze.
		log.Warn("face detection failed", "err", err)
		faces = nil
	}
	a.stats.Faces += len(faces)

	for _, face := range faces {
		res := a.Matcher.Match(face.Feature)
		if !a.Matcher.Confirmed(res) {
			rep.Overlays = append(rep.Overlays, types.Overlay{Box: face.Box, Label: types.Unknown})
			continue
		}

		a.stats.Confirmed++
		rep.Confirmed = append(rep.Confirmed, res.Identity)
		rep.Overlays = append(rep.Overlays, types.Overlay{Box: face.Box, Label: res.Identity, Confirmed: true})

		sighting := types.Sighting{Confidence: res.Confidence, FrameIndex: frame.Index, Time: frame.Captured}
		if sighting.Time.IsZero() {
			sighting.Time = time.Now()
		}
		if profile := a.lookup(ctx, log, res.Identity); profile != nil {
			sighting.Profile = *profile
			rep.Sightings = append(rep.Sightings, sighting)
			if a.Table != nil {
				a.Table.Insert(sighting)
			}
		} else if id, err := strconv.Atoi(res.Identity); err == nil {
			sighting.Profile.ID = id
		}

		if a.Alerter != nil {
			a.stats.Raised++
			a.Alerter.Alert(ctx, sighting)
		}
	}

	for _, d := range a.Displays {
		if err := d.Render(ctx, frame, rep.Overlays); err != nil {
			log.Warn("render failed", "err", err)
		}
	}

	if len(rep.Confirmed) > 0 {
		log.Info("detected people", "ids", rep.Confirmed)
	}
	return rep, true
}

func (a *App) lookup(ctx context.Context, log *slog.Logger, identity string) *types.Profile {
	if a.Profiles == nil {
		return nil
	}
	id, err := strconv.Atoi(identity)
	if err != nil {
		log.Warn("identity is not a record id", "identity", identity)
		return nil
	}
	a.stats.Lookups++
	p, err := a.Profiles.Profile(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("no profile for identity", "id", id)
		return nil
	case err != nil:
		log.Error("profile lookup failed", "id", id, "err", err)
		return nil
	}
	return p
}

// streamEnd is implemented by sources that can run dry (video files).
type streamEnd interface {
	Done() <-chan struct{}
}

// Run loops until ctx is cancelled, MaxFrames frames were processed, or a
// finite source is exhausted. The next tick is scheduled Delay after the
// previous one finished, however long that took.
func (a *App) Run(ctx context.Context) error {
	delay := a.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	log := a.logger()
	log.Info("session started", "session", a.SessionID, "delay", delay)

	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			break
		}
		if _, ok := a.Step(ctx); !ok && a.exhausted() {
			log.Info("video source ended")
			break
		}
		if a.MaxFrames > 0 && a.stats.Frames >= a.MaxFrames {
			break
		}

		timer.Reset(delay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	s := a.stats
	log.Info("session finished", "session", a.SessionID, "frames", s.Frames, "missed", s.Misses,
		"faces", s.Faces, "confirmed", s.Confirmed, "alerts_raised", s.Raised)
	return nil
}

func (a *App) exhausted() bool {
	se, ok := a.Source.(streamEnd)
	if !ok {
		return false
	}
	select {
	case <-se.Done():
		return true
	default:
		return false
	}
}
