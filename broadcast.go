package wxmatrix

import (
	"time"

	"github.com/TeamNorCal/wxmatrix/model"
)

// StatePublisher receives the display state after every command or save.
// Publish is called from the tick goroutine and must not block.
type StatePublisher interface {
	Publish(state model.StatePayload)
}

// Fanout implements a broadcast mechanism that accepts display states and
// relays them to subscribers.  Only the most recent state is of interest, a
// state that has not been picked up yet is replaced by a newer one.
type Fanout struct {
	inC  chan model.StatePayload
	subC chan chan model.StatePayload
}

// StartFanOut starts the broadcaster, it stops when quitC is closed
func StartFanOut(quitC <-chan struct{}) (f *Fanout) {
	f = &Fanout{
		inC:  make(chan model.StatePayload, 1),
		subC: make(chan chan model.StatePayload, 1),
	}

	go func(quitC <-chan struct{}) {
		defer logger.Debug("state fanout stopped")

		subs := []chan model.StatePayload{}
		for {
			select {
			case <-quitC:
				return
			case sub := <-f.subC:
				if nil != sub {
					subs = append(subs, sub)
					logger.Debug("state subscription added", "count", len(subs))
				}
			case msg := <-f.inC:
				// Subscribers that cannot keep up are groomed out using
				// https://github.com/golang/go/wiki/SliceTricks#filtering-without-allocating
				kept := subs[:0]
				for _, ch := range subs {
					select {
					case ch <- msg:
						kept = append(kept, ch)
					case <-time.After(250 * time.Millisecond):
						logger.Warn("state subscription dropped, failed to send")
					case <-quitC:
						return
					}
				}
				subs = kept
			}
		}
	}(quitC)

	return f
}

// Subscribe adds a listener that will receive every subsequent state
func (f *Fanout) Subscribe(ch chan model.StatePayload) {
	f.subC <- ch
}

// Publish queues a state for the subscribers without blocking
func (f *Fanout) Publish(state model.StatePayload) {
	for {
		select {
		case f.inC <- state:
			return
		default:
		}
		// Discard the state nobody has picked up yet
		select {
		case <-f.inC:
		default:
		}
	}
}
