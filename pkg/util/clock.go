package util

import "time"

// Clock abstracts wall time for the engine and scheduler: Now stamps orders
// and trades, After paces the tick loop. Tests substitute a hand-driven
// implementation.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }
