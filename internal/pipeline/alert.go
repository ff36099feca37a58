package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/watchlist/internal/types"
)

// AlertSink produces the actual alert. Beep may block for as long as the
// sound plays.
type AlertSink interface {
	Beep(ctx context.Context) error
}

// Bell rings the terminal bell and then holds for Duration, like a blocking
// system beep.
type Bell struct {
	Out      io.Writer
	Duration time.Duration
}

// Beep implements AlertSink.
func (b Bell) Beep(ctx context.Context) error {
	if _, err := io.WriteString(b.Out, "\a"); err != nil {
		return err
	}
	if b.Duration <= 0 {
		return nil
	}
	t := time.NewTimer(b.Duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Notifier plays alerts on its own goroutine so a long beep never stalls the
// frame loop. At most one alert is in flight; alerts raised while one is
// playing are dropped and counted.
type Notifier struct {
	sink    AlertSink
	logger  *slog.Logger
	ctx     context.Context
	ch      chan types.Sighting
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	busy    atomic.Bool
	played  atomic.Int64
	dropped atomic.Int64
}

// NewNotifier starts the alert goroutine. ctx bounds every Beep.
func NewNotifier(ctx context.Context, sink AlertSink, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		sink:   sink,
		logger: logger,
		ctx:    ctx,
		ch:     make(chan types.Sighting, 1),
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *Notifier) loop() {
	defer n.wg.Done()
	for s := range n.ch {
		err := n.sink.Beep(n.ctx)
		n.busy.Store(false)
		switch {
		case err == nil:
			n.played.Add(1)
		case n.ctx.Err() == nil:
			n.logger.Warn("alert failed", "id", s.Profile.ID, "err", err)
		}
	}
}

// Alert implements Alerter. It never blocks.
func (n *Notifier) Alert(_ context.Context, s types.Sighting) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	// busy is only cleared after the loop took the previous alert off the
	// channel, so the send below never blocks.
	if !n.busy.CompareAndSwap(false, true) {
		n.dropped.Add(1)
		return
	}
	n.ch <- s
}

// Played is the number of alerts that finished playing.
func (n *Notifier) Played() int64 { return n.played.Load() }

// Dropped is the number of alerts skipped because one was already playing.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Close stops accepting alerts and waits for the one in flight.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.ch)
	n.mu.Unlock()
	n.wg.Wait()
}
