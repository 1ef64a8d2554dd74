package realtime

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The client uses it for keepalive and reconnect timers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
