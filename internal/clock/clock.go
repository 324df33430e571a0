// Package clock converts between the process-wide local timezone (a fixed
// UTC offset plus display label) and UTC instants. Reminders are normalized
// to UTC once, at creation, so stored times never drift.
package clock

import (
	"fmt"
	"time"
)

type Config struct {
	// UTCOffsetHours is the fixed offset of the local wall clock from UTC.
	// May be negative. Not per-user: one offset for the whole process.
	UTCOffsetHours int
	// Label is the display name of the local zone, e.g. "WIB".
	Label string
}

// Clock resolves local wall-clock times against a fixed UTC offset.
type Clock struct {
	loc   *time.Location
	label string

	// now is swappable for tests.
	now func() time.Time
}

func New(cfg Config) *Clock {
	label := cfg.Label
	if label == "" {
		label = fmt.Sprintf("UTC%+d", cfg.UTCOffsetHours)
	}
	return &Clock{
		loc:   time.FixedZone(label, cfg.UTCOffsetHours*3600),
		label: label,
		now:   time.Now,
	}
}

// NewAt returns a Clock whose NowUTC is pinned by fn. Test hook.
func NewAt(cfg Config, fn func() time.Time) *Clock {
	c := New(cfg)
	c.now = fn
	return c
}

func (c *Clock) Label() string { return c.label }

func (c *Clock) NowUTC() time.Time { return c.now().UTC() }

// NextOccurrenceUTC returns the next UTC instant at which the local wall
// clock reads hour:minute, relative to ref. The candidate is computed on
// ref's local date with seconds zeroed; if it is not strictly after ref it
// is advanced by exactly one day, so a reminder for a time already past
// today rolls to tomorrow and never fires in the past.
func (c *Clock) NextOccurrenceUTC(hour, minute int, ref time.Time) time.Time {
	local := ref.In(c.loc)
	cand := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, c.loc)
	if !cand.After(ref) {
		cand = cand.Add(24 * time.Hour)
	}
	return cand.UTC()
}

// NowLocalString renders the current local time with date and zone label,
// e.g. "09:00 2024-01-01 WIB". Used as conversational context.
func (c *Clock) NowLocalString() string {
	return c.now().In(c.loc).Format("15:04 2006-01-02") + " " + c.label
}

// FormatLocal renders t as local wall-clock time with the zone label,
// e.g. "09:00 WIB". Used for user-facing confirmations.
func (c *Clock) FormatLocal(t time.Time) string {
	return t.In(c.loc).Format("15:04") + " " + c.label
}
