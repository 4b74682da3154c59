package scylla

import "time"

// gocql scans NULL timestamps as the zero time; these helpers translate to
// and from the pointer fields used by the domain model.

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
