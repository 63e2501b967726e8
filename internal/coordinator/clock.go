package coordinator

import "time"

// Clock supplies the current time for deadline comparisons. Production code
// uses SystemClock; tests substitute a fake to drive expiry deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
