package vault

import "time"

// Clock supplies the vault's notion of time. Update records are stamped at
// one-second granularity, which is also the discrete time unit for the
// double-update check.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
