package wxmatrix

// The station owns the display and is the only goroutine that touches it.  Work
// originating on other goroutines, HTTP handlers or MQTT callbacks for
// example, is queued into the inbox and run between ticks.

import (
	"context"
	"time"

	"github.com/go-stack/stack"
	"github.com/karlmutch/errors"
)

const inboxDepth = 16

// Station serializes all access to a Display
type Station struct {
	display *Display
	inbox   chan func(*Display)
}

// NewStation wraps a display
func NewStation(display *Display) (s *Station) {
	return &Station{
		display: display,
		inbox:   make(chan func(*Display), inboxDepth),
	}
}

// Enqueue queues fn to be run on the tick goroutine without waiting for it.
// false is returned when the inbox is full and fn was dropped.
func (s *Station) Enqueue(fn func(*Display)) bool {
	select {
	case s.inbox <- fn:
		return true
	default:
		logger.Warn("station inbox full, work dropped")
		return false
	}
}

// Do runs fn on the tick goroutine and waits for it to complete
func (s *Station) Do(ctx context.Context, fn func(*Display)) (err errors.Error) {
	doneC := make(chan struct{})
	work := func(d *Display) {
		defer close(doneC)
		fn(d)
	}

	select {
	case s.inbox <- work:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err()).With("stack", stack.Trace().TrimRuntime())
	}

	select {
	case <-doneC:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err()).With("stack", stack.Trace().TrimRuntime())
	}
}

// Run ticks the display every interval and runs queued work as it arrives until
// ctx is cancelled, the display is shut down on the way out
func (s *Station) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	defer func() {
		if err := s.display.Shutdown(); err != nil {
			logger.Warn("display shutdown failed", "error", err.Error())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.inbox:
			fn(s.display)
		case <-tick.C:
			s.display.Tick()
		}
	}
}
