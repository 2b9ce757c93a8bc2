package access

import "time"

// Lookup resolves policy and group references during authorization. Both
// methods report false when the referenced row no longer exists, which the
// engine treats the same as an absent reference.
type Lookup interface {
	PolicyByID(id string) (*Policy, bool)
	GroupByID(id string) (*Group, bool)
}

// ResolveEffectivePolicy picks the policy governing a key: the key's own
// reference wins over its group's default; no reference means unrestricted.
func ResolveEffectivePolicy(key *Key, lk Lookup) (*Policy, PolicySource) {
	if key.PolicyID != "" {
		if p, ok := lk.PolicyByID(key.PolicyID); ok {
			return p, SourceKey
		}
	}
	if key.GroupID != "" {
		if g, ok := lk.GroupByID(key.GroupID); ok && g.PolicyID != "" {
			if p, ok := lk.PolicyByID(g.PolicyID); ok {
				return p, SourceGroup
			}
		}
	}
	return nil, SourceNone
}

// Authorize evaluates a key against its status, expiry and effective policy.
// It is pure: the caller supplies now (already in the gate's time zone), so
// identical inputs always yield identical decisions. Checks short-circuit
// cheapest first.
func Authorize(key *Key, lk Lookup, now time.Time) Decision {
	d := Decision{Source: SourceNone, EvaluatedAt: now}

	if !key.Status {
		d.Reason = ReasonKeyDisabled
		return d
	}
	if key.ExpiresAt != nil && !key.ExpiresAt.After(now) {
		d.Reason = ReasonKeyExpired
		return d
	}

	policy, source := ResolveEffectivePolicy(key, lk)
	d.Source = source
	if policy != nil {
		d.PolicyID = policy.ID
	}

	verdict := Evaluate(policy, now)
	d.Allowed = verdict.Allowed
	d.Reason = verdict.Reason
	return d
}
