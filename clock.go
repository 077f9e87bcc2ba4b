package wxmatrix

import (
	"time"
)

// Clock is the wall clock capability the display depends upon.  Synchronized
// reports whether Now can be trusted as civil time, until then the clock scene
// shows a placeholder and the night window is not applied.
type Clock interface {
	Now() time.Time
	Synchronized() bool
}

// syncThreshold is 2005-01-01T00:00:00Z, anything earlier is taken to be an
// unset real time clock
var syncThreshold = time.Unix(1104537600, 0)

// SystemClock reads the host clock in the local time zone
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Synchronized treats any time after the start of 2005 as valid
func (SystemClock) Synchronized() bool {
	return time.Now().After(syncThreshold)
}
