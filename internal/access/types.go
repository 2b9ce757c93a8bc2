package access

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Key is a public-key identity subject to access control. A key may carry
// its own policy reference; otherwise its group's default policy applies.
type Key struct {
	ID          string     `json:"id"`
	Npub        string     `json:"npub"`
	Nip05       string     `json:"nip05,omitempty"`
	ProfileName string     `json:"profile_name,omitempty"`
	Status      bool       `json:"status"`
	PolicyID    string     `json:"policy_id,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Policy is a reusable day-of-week/time-of-day access window. A policy with
// ExpiryDays set stops matching ExpiryDays*24h after its creation.
type Policy struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ActiveDays DaySet    `json:"active_days"`
	TimeStart  TimeOfDay `json:"time_start"`
	TimeEnd    TimeOfDay `json:"time_end"`
	ExpiryDays int       `json:"expiry_days,omitempty"` // 0 = never expires
	CreatedAt  time.Time `json:"created_at"`
}

// Group is a named collection of keys sharing an optional default policy.
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PolicyID  string    `json:"policy_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Reason identifies why a decision allowed or denied access. Consumers
// branch on these values, so they are part of the API surface.
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonKeyDisabled       Reason = "key_disabled"
	ReasonKeyExpired        Reason = "key_expired"
	ReasonPolicyExpired     Reason = "policy_expired"
	ReasonOutsideActiveDays Reason = "outside_active_days"
	ReasonOutsideTimeWindow Reason = "outside_time_window"
)

// PolicySource tags which reference supplied the effective policy.
type PolicySource string

const (
	SourceNone  PolicySource = "none"
	SourceKey   PolicySource = "key"
	SourceGroup PolicySource = "group"
)

// Decision is the structured outcome of authorizing a key at an instant.
type Decision struct {
	Allowed     bool         `json:"allowed"`
	Reason      Reason       `json:"reason"`
	Source      PolicySource `json:"policy_source"`
	PolicyID    string       `json:"policy_id,omitempty"`
	EvaluatedAt time.Time    `json:"evaluated_at"`
}

var (
	ErrNotFound      = errors.New("access: not found")
	ErrAlreadyExists = errors.New("access: already exists")
	ErrInvalidInput  = errors.New("access: invalid input")
)

const npubLength = 63

// ValidateNpub checks the bech32 npub shape the gate accepts.
func ValidateNpub(npub string) error {
	if !strings.HasPrefix(npub, "npub1") || len(npub) != npubLength {
		return fmt.Errorf("%w: npub must be a 63-character npub1 identifier", ErrInvalidInput)
	}
	return nil
}

// DaySet is a bitmask of weekdays, bit n = time.Weekday(n). The empty set
// means no day restriction.
type DaySet uint8

func (d DaySet) Has(w time.Weekday) bool { return d&(1<<uint(w)) != 0 }
func (d DaySet) Empty() bool             { return d == 0 }

// With returns the set extended with the given weekday.
func (d DaySet) With(w time.Weekday) DaySet { return d | 1<<uint(w) }

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// ParseDaySet parses a comma-separated list of three-letter day names.
// The empty string yields the empty (unrestricted) set.
func ParseDaySet(raw string) (DaySet, error) {
	var set DaySet
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return set, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		day, ok := dayNames[part]
		if !ok {
			return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidInput, part)
		}
		set = set.With(day)
	}
	return set, nil
}

func (d DaySet) String() string {
	if d.Empty() {
		return ""
	}
	names := map[time.Weekday]string{}
	for name, day := range dayNames {
		names[day] = name
	}
	var parts []string
	for w := time.Sunday; w <= time.Saturday; w++ {
		if d.Has(w) {
			parts = append(parts, names[w])
		}
	}
	return strings.Join(parts, ",")
}

// MarshalJSON renders the set in its textual form.
func (d DaySet) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts the textual form produced by String.
func (d *DaySet) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	set, err := ParseDaySet(raw)
	if err != nil {
		return err
	}
	*d = set
	return nil
}

// TimeOfDay is a local time expressed as minutes since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	var h, m int
	if _, err := fmt.Sscanf(raw, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrInvalidInput, raw)
	}
	return TimeOfDay(h*60 + m), nil
}

// Seconds returns the bound as seconds since midnight, the resolution
// window checks are made at.
func (t TimeOfDay) Seconds() int { return int(t) * 60 }

func (t TimeOfDay) Valid() bool { return t >= 0 && t < minutesPerDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON renders "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	parsed, err := ParseTimeOfDay(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
