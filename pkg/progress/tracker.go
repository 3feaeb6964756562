// Package progress renders session progress for the CLI. It is a pure
// consumer of ProgressEvents: delivery is best-effort on the engine
// side, so the tracker treats every event as a snapshot and repaints
// from the latest one on a timer instead of printing per event.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"csa/pkg/core"
)

// Tracker consumes ProgressEvents and periodically prints a one-line
// status. Create one per session, hand Events() to the engine, and
// Stop it after Wait returns.
type Tracker struct {
	out    io.Writer
	events chan core.ProgressEvent

	mu      sync.Mutex
	last    core.ProgressEvent
	seen    bool
	painted core.ProgressEvent

	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
	start    time.Time
}

// New starts a tracker writing to out.
func New(out io.Writer) *Tracker {
	t := &Tracker{
		out:      out,
		events:   make(chan core.ProgressEvent, 64),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		start:    time.Now(),
	}
	go t.loop()
	return t
}

// Events returns the channel to pass as Options.Events.
func (t *Tracker) Events() chan<- core.ProgressEvent { return t.events }

// Stop paints the final line and shuts the tracker down. Safe to call
// more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
	<-t.finished
}

func (t *Tracker) loop() {
	defer close(t.finished)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev := <-t.events:
			t.mu.Lock()
			t.last, t.seen = ev, true
			t.mu.Unlock()
		case <-ticker.C:
			t.paint(false)
		case <-t.done:
			// Drain whatever arrived between the last tick and Stop.
			for {
				select {
				case ev := <-t.events:
					t.mu.Lock()
					t.last, t.seen = ev, true
					t.mu.Unlock()
					continue
				default:
				}
				break
			}
			t.paint(true)
			return
		}
	}
}

func (t *Tracker) paint(final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seen || (!final && t.last == t.painted) {
		return
	}
	t.painted = t.last
	ev := t.last

	doneCount := ev.Completed + ev.Failed
	pct := 100.0
	if ev.Total > 0 {
		pct = float64(doneCount) / float64(ev.Total) * 100
	}
	if final {
		fmt.Fprintf(t.out, "done: %d/%d files in %.1fs (%d failed)\n",
			ev.Completed, ev.Total, time.Since(t.start).Seconds(), ev.Failed)
		return
	}
	line := fmt.Sprintf("%d/%d (%.1f%%)", doneCount, ev.Total, pct)
	if ev.LastPath != "" {
		line += " " + ev.LastPath
	}
	fmt.Fprintln(t.out, line)
}
