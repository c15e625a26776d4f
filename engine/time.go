package engine

import "time"

// DateLayout is the calendar-date format of utilization buckets.
const DateLayout = "2006-01-02"

// Clock returns the current time. Injected so tests control bucket placement.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// BucketFor returns the utilization bucket a reservation starting at t lands in.
// Buckets are computed in UTC.
func BucketFor(slotID SlotID, t time.Time) StatKey {
	u := t.UTC()
	return StatKey{
		SlotID: slotID,
		Date:   u.Format(DateLayout),
		Hour:   u.Hour(),
	}
}

// Range is an inclusive calendar-date range. A zero bound is open.
type Range struct {
	From time.Time
	To   time.Time
}

// FromDate and ToDate render the bounds in bucket format ("" when open).
func (r Range) FromDate() string {
	if r.From.IsZero() {
		return ""
	}
	return r.From.UTC().Format(DateLayout)
}

func (r Range) ToDate() string {
	if r.To.IsZero() {
		return ""
	}
	return r.To.UTC().Format(DateLayout)
}

// Contains reports whether a bucket date string lies inside the range.
func (r Range) Contains(date string) bool {
	if from := r.FromDate(); from != "" && date < from {
		return false
	}
	if to := r.ToDate(); to != "" && date > to {
		return false
	}
	return true
}
