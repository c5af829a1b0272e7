package watcher

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

// DefaultDebounce is the trigger window when none is configured.
const DefaultDebounce = 2 * time.Second

// Trigger is one debounced batch of changes. Paths is the deduplicated,
// sorted union of every event path in the window.
type Trigger struct {
	Paths []string
	At    time.Time
}

// Debouncer folds bursts of Events into single Triggers. The trigger
// channel has capacity one: while a run is in flight at most one Trigger
// stays pending, and later windows merge into it instead of queueing up.
type Debouncer struct {
	clk      clock.Clock
	window   time.Duration
	in       <-chan Event
	triggers chan Trigger
}

// NewDebouncer wires a Debouncer over an event stream. The clock is
// injectable so tests drive the window with a mock.
func NewDebouncer(clk clock.Clock, window time.Duration, in <-chan Event) *Debouncer {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Debouncer{
		clk:      clk,
		window:   window,
		in:       in,
		triggers: make(chan Trigger, 1),
	}
}

// Triggers returns the debounced output. Closed when Run returns.
func (d *Debouncer) Triggers() <-chan Trigger { return d.triggers }

// Run consumes events until ctx is canceled or the input closes. Each event
// re-arms the window timer, so a burst yields exactly one Trigger. A partial
// window in flight at shutdown is discarded.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.triggers)

	var timer *clock.Timer
	var timerC <-chan time.Time
	batch := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-d.in:
			if !ok {
				if timer != nil {
					timer.Stop()
				}
				return
			}
			batch[ev.Path] = struct{}{}
			if timer == nil {
				timer = d.clk.Timer(d.window)
				timerC = timer.C
			} else {
				timer.Reset(d.window)
			}

		case now := <-timerC:
			timer = nil
			timerC = nil
			paths := lo.Keys(batch)
			sort.Strings(paths)
			batch = map[string]struct{}{}
			d.send(Trigger{Paths: paths, At: now})
		}
	}
}

// send delivers a trigger, coalescing with one still awaiting pickup. Run is
// the only sender, so after the drain the final send cannot block.
func (d *Debouncer) send(t Trigger) {
	select {
	case d.triggers <- t:
		return
	default:
	}
	select {
	case old := <-d.triggers:
		t.Paths = lo.Union(old.Paths, t.Paths)
		sort.Strings(t.Paths)
	default:
	}
	d.triggers <- t
}
