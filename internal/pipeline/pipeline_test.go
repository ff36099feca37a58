package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andresmejia3/watchlist/internal/matcher"
	"github.com/andresmejia3/watchlist/internal/store"
	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	frames []types.Frame
	misses int
	pos    int
	done   chan struct{}
}

func (s *scriptedSource) Read() (types.Frame, bool) {
	if s.misses > 0 {
		s.misses--
		return types.Frame{}, false
	}
	if s.pos >= len(s.frames) {
		if s.done != nil {
			select {
			case <-s.done:
			default:
				close(s.done)
			}
		}
		return types.Frame{}, false
	}
	f := s.frames[s.pos]
	s.pos++
	return f, true
}

func (s *scriptedSource) Close() error { return nil }

type doneSource struct{ *scriptedSource }

func (s doneSource) Done() <-chan struct{} { return s.done }

type faceScript map[int][]types.DetectedFace

func (f faceScript) Detect(ctx context.Context, frame types.Frame) ([]types.DetectedFace, error) {
	return f[frame.Index], nil
}

type failingDetector struct{}

func (failingDetector) Detect(context.Context, types.Frame) ([]types.DetectedFace, error) {
	return nil, errors.New("engine crashed")
}

type profileMap struct {
	profiles map[int]types.Profile
	lookups  int
}

func (p *profileMap) Profile(_ context.Context, id int) (*types.Profile, error) {
	p.lookups++
	prof, ok := p.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &prof, nil
}

type countingAlerter struct{ got []types.Sighting }

func (a *countingAlerter) Alert(_ context.Context, s types.Sighting) { a.got = append(a.got, s) }

type recordingDisplay struct{ overlays [][]types.Overlay }

func (d *recordingDisplay) Render(_ context.Context, _ types.Frame, o []types.Overlay) error {
	d.overlays = append(d.overlays, o)
	return nil
}

type rows struct{ got []types.Sighting }

func (r *rows) Insert(s types.Sighting) { r.got = append(r.got, s) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func galleryMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	g, err := matcher.NewGallery([]string{"7", "9"}, [][]float32{{0, 0}, {5, 5}})
	require.NoError(t, err)
	return matcher.New(g)
}

// A face 0.526 away from identity 7 scores about 0.85.
var face7 = types.DetectedFace{
	Box:     types.BoundingBox{Top: 10, Right: 60, Bottom: 70, Left: 20},
	Feature: []float32{0.526, 0},
}

type fixture struct {
	app      *App
	profiles *profileMap
	alerts   *countingAlerter
	display  *recordingDisplay
	table    *rows
}

func newFixture(t *testing.T, src Source, det Detector) *fixture {
	f := &fixture{
		profiles: &profileMap{profiles: map[int]types.Profile{
			7: {ID: 7, Name: "John Doe", Crime: "Fraud", Nationality: "Unknown"},
		}},
		alerts:  &countingAlerter{},
		display: &recordingDisplay{},
		table:   &rows{},
	}
	f.app = &App{
		Source:   src,
		Detector: det,
		Matcher:  galleryMatcher(t),
		Profiles: f.profiles,
		Alerter:  f.alerts,
		Displays: []Display{f.display},
		Table:    f.table,
		Logger:   quiet(),
		Delay:    time.Millisecond,
	}
	return f
}

func threeFrames() *scriptedSource {
	return &scriptedSource{frames: []types.Frame{{Index: 1}, {Index: 2}, {Index: 3}}}
}

func TestRun_ThreeFrameSession(t *testing.T) {
	det := faceScript{2: {face7}, 3: {face7}}
	f := newFixture(t, threeFrames(), det)
	f.app.MaxFrames = 3

	require.NoError(t, f.app.Run(context.Background()))

	assert.Len(t, f.display.overlays, 3)
	assert.Empty(t, f.display.overlays[0], "frame without faces renders plain")
	assert.Equal(t, 2, f.profiles.lookups)
	assert.Len(t, f.alerts.got, 2, "repeat sightings alert again")
	require.Len(t, f.table.got, 2)

	row := f.table.got[0]
	assert.Equal(t, "John Doe", row.Profile.Name)
	assert.Equal(t, 2, row.FrameIndex)
	assert.InDelta(t, 0.85, row.Confidence, 0.01)

	for _, o := range f.display.overlays[1:] {
		require.Len(t, o, 1)
		assert.Equal(t, "7", o[0].Label)
		assert.True(t, o[0].Confirmed)
	}

	s := f.app.Stats()
	assert.Equal(t, 3, s.Frames)
	assert.Equal(t, 2, s.Confirmed)
	assert.Equal(t, 2, s.Raised)
	assert.Equal(t, Idle, f.app.State())
}

func TestStep_NoFrameDoesNothing(t *testing.T) {
	src := &scriptedSource{misses: 1, frames: []types.Frame{{Index: 1}}}
	f := newFixture(t, src, faceScript{1: {face7}})

	_, ok := f.app.Step(context.Background())
	assert.False(t, ok)
	assert.Empty(t, f.display.overlays)
	assert.Zero(t, f.profiles.lookups)
	assert.Equal(t, 1, f.app.Stats().Misses)

	_, ok = f.app.Step(context.Background())
	assert.True(t, ok)
	assert.Len(t, f.display.overlays, 1)
}

func TestStep_UnknownFaceIsLabelledButNotLookedUp(t *testing.T) {
	stranger := types.DetectedFace{Box: types.BoundingBox{Right: 10, Bottom: 10}, Feature: []float32{2.5, 2.5}}
	f := newFixture(t, threeFrames(), faceScript{1: {stranger, face7}})

	rep, ok := f.app.Step(context.Background())
	require.True(t, ok)
	require.Len(t, rep.Overlays, 2)
	assert.Equal(t, types.Unknown, rep.Overlays[0].Label)
	assert.False(t, rep.Overlays[0].Confirmed)
	assert.Equal(t, "7", rep.Overlays[1].Label)
	assert.Equal(t, []string{"7"}, rep.Confirmed)
	assert.Equal(t, 1, f.profiles.lookups)
}

func TestStep_MissingProfileStillAlerts(t *testing.T) {
	f := newFixture(t, threeFrames(), faceScript{1: {face7}})
	f.profiles.profiles = map[int]types.Profile{}

	rep, ok := f.app.Step(context.Background())
	require.True(t, ok)
	assert.Empty(t, rep.Sightings)
	assert.Empty(t, f.table.got)
	require.Len(t, f.alerts.got, 1)
	assert.Equal(t, 7, f.alerts.got[0].Profile.ID)
}

func TestStep_DetectionErrorRendersPlainFrame(t *testing.T) {
	f := newFixture(t, threeFrames(), failingDetector{})

	_, ok := f.app.Step(context.Background())
	require.True(t, ok)
	require.Len(t, f.display.overlays, 1)
	assert.Empty(t, f.display.overlays[0])
	assert.Empty(t, f.alerts.got)
}

func TestRun_StopsWhenStreamEnds(t *testing.T) {
	src := threeFrames()
	src.done = make(chan struct{})
	f := newFixture(t, doneSource{src}, faceScript{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.app.Run(ctx))
	assert.NoError(t, ctx.Err(), "loop should end on its own")
	assert.Equal(t, 3, f.app.Stats().Frames)
}

type blockingSource struct{ reads atomic.Int32 }

func (b *blockingSource) Read() (types.Frame, bool) {
	b.reads.Add(1)
	return types.Frame{}, false
}
func (b *blockingSource) Close() error { return nil }

func TestRun_CancelStopsLoop(t *testing.T) {
	src := &blockingSource{}
	app := &App{Source: src, Detector: faceScript{}, Matcher: galleryMatcher(t), Logger: quiet(), Delay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Positive(t, src.reads.Load())
}

type slowSink struct {
	mu      sync.Mutex
	release chan struct{}
	beeps   int
}

func (s *slowSink) Beep(ctx context.Context) error {
	<-s.release
	s.mu.Lock()
	s.beeps++
	s.mu.Unlock()
	return nil
}

func TestNotifier_DropsWhileBusy(t *testing.T) {
	sink := &slowSink{release: make(chan struct{})}
	n := NewNotifier(context.Background(), sink, quiet())

	n.Alert(context.Background(), types.Sighting{})
	assert.Zero(t, n.Dropped(), "an idle notifier accepts the alert")

	n.Alert(context.Background(), types.Sighting{})
	n.Alert(context.Background(), types.Sighting{})
	assert.Equal(t, int64(2), n.Dropped())

	close(sink.release)
	n.Close()
	assert.Equal(t, int64(1), n.Played())

	// Alerts after Close are ignored.
	n.Alert(context.Background(), types.Sighting{})
	n.Close()
	assert.Equal(t, int64(2), n.Dropped())
}

type quickSink struct{ beeps atomic.Int32 }

func (s *quickSink) Beep(context.Context) error {
	s.beeps.Add(1)
	return nil
}

func TestNotifier_AlertRightAfterStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		sink := &quickSink{}
		n := NewNotifier(context.Background(), sink, quiet())
		n.Alert(context.Background(), types.Sighting{})
		n.Close()
		require.Equal(t, int64(1), n.Played(), "run %d", i)
		require.Zero(t, n.Dropped(), "run %d", i)
	}
}

func TestNotifier_SequentialAlertsAllPlay(t *testing.T) {
	sink := &quickSink{}
	n := NewNotifier(context.Background(), sink, quiet())
	defer n.Close()

	for i := int64(1); i <= 5; i++ {
		n.Alert(context.Background(), types.Sighting{})
		require.Eventually(t, func() bool { return n.Played() == i }, time.Second, time.Millisecond)
	}
	assert.Zero(t, n.Dropped())
	assert.Equal(t, int32(5), sink.beeps.Load())
}

type failingSink struct{}

func (failingSink) Beep(context.Context) error { return errors.New("no audio device") }

func TestNotifier_FailedBeepIsNotPlayed(t *testing.T) {
	n := NewNotifier(context.Background(), failingSink{}, quiet())
	n.Alert(context.Background(), types.Sighting{})
	n.Close()
	assert.Zero(t, n.Played())

	// The failure frees the notifier for the next alert.
	n = NewNotifier(context.Background(), failingSink{}, quiet())
	defer n.Close()
	n.Alert(context.Background(), types.Sighting{})
	require.Eventually(t, func() bool {
		before := n.Dropped()
		n.Alert(context.Background(), types.Sighting{})
		return n.Dropped() == before
	}, time.Second, time.Millisecond)
}

func TestBell(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Bell{Out: &buf}.Beep(context.Background()))
	assert.Equal(t, "\a", buf.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Bell{Out: &buf, Duration: time.Hour}.Beep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
