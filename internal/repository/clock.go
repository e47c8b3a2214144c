package repository

import "time"

// Clock returns the current time. Repositories take one so tests can pin it.
type Clock func() time.Time

// touch returns a modification time strictly after prev.
func touch(now Clock, prev time.Time) time.Time {
	t := now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func systemClock() time.Time {
	return time.Now()
}
