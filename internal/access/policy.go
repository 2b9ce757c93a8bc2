package access

import "time"

// Verdict is the outcome of evaluating a policy at an instant.
type Verdict struct {
	Allowed bool
	Reason  Reason
}

func allow() Verdict        { return Verdict{Allowed: true, Reason: ReasonAllowed} }
func deny(r Reason) Verdict { return Verdict{Allowed: false, Reason: r} }

// Evaluate decides whether a policy admits the given instant. A nil policy
// is unrestricted: key status and expiry are enforced by the caller.
//
// The instant must already be expressed in the gate's local time zone;
// weekday and time of day are read from it directly.
func Evaluate(p *Policy, now time.Time) Verdict {
	if p == nil {
		return allow()
	}
	if p.ExpiryDays > 0 {
		deadline := p.CreatedAt.Add(time.Duration(p.ExpiryDays) * 24 * time.Hour)
		if now.After(deadline) {
			return deny(ReasonPolicyExpired)
		}
	}
	// Empty day set means no day restriction.
	if !p.ActiveDays.Empty() && !p.ActiveDays.Has(now.Weekday()) {
		return deny(ReasonOutsideActiveDays)
	}
	return evaluateWindow(p.TimeStart, p.TimeEnd, secondOfDay(now))
}

// evaluateWindow compares at second resolution: the bounds are whole
// minutes, but an instant one second past time_end is already outside.
func evaluateWindow(start, end TimeOfDay, sec int) Verdict {
	switch {
	case start == end:
		// Equal bounds denote an all-day window, not a zero-width one.
		return allow()
	case start < end:
		if sec >= start.Seconds() && sec <= end.Seconds() {
			return allow()
		}
	default:
		// Overnight window, e.g. 22:00-06:00.
		if sec >= start.Seconds() || sec <= end.Seconds() {
			return allow()
		}
	}
	return deny(ReasonOutsideTimeWindow)
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
