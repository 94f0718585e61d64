package adapter

import "time"

// Clock abstracts ambient time reads so TTL and timeout checks are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
