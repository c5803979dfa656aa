package sessionkit

import "time"

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock constructs a Clock backed by the wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}
