package quota

import "time"

// ResetDue reports whether the record's scheduled reset time has arrived.
// Pure and total: a now before the cycle anchor (clock skew) simply yields
// false.
func ResetDue(rec UsageQuotaRecord, now time.Time) bool {
	return !now.Before(rec.NextResetAt)
}

// NextResetAfter advances prev by whole cycle lengths until strictly after
// now. Anchoring on the previous reset time, not on now, keeps the cycle
// from drifting under scheduler jitter; stepping past now covers missed
// runs without leaving the result in the past.
func NextResetAfter(prev time.Time, cycle time.Duration, now time.Time) time.Time {
	next := prev.Add(cycle)
	for !next.After(now) {
		next = next.Add(cycle)
	}
	return next
}
