package domain

import "time"

// Clock is the engine's only source of time. Operations read it once and
// validate the reading against recorded timestamps, so hosts can pin or
// replay time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
