package metadata

import "time"

// Clock produces the monotonic Ticks stamped onto BlobInfo.LastAccess.
// Tests supply a fakeClock so score-decay assertions don't depend on wall
// time actually elapsing.
type Clock interface {
	Now() Ticks
}

type systemClock struct{}

func (systemClock) Now() Ticks { return Ticks(time.Now().UnixNano()) }

// SystemClock is the Clock every production MDM uses.
var SystemClock Clock = systemClock{}
