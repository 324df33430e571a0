package clock

import (
	"testing"
	"time"
)

func TestNextOccurrenceUTC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		offset int
		hour   int
		minute int
		ref    string
		want   string
	}{
		{
			// local 08:30, reminder for 09:00 → later the same day
			name: "same day", offset: 7, hour: 9, minute: 0,
			ref: "2024-01-01T01:30:00Z", want: "2024-01-01T02:00:00Z",
		},
		{
			// local 09:30, reminder for 09:00 already passed → next day
			name: "rolls to next day", offset: 7, hour: 9, minute: 0,
			ref: "2024-01-01T02:30:00Z", want: "2024-01-02T02:00:00Z",
		},
		{
			// exact boundary is not strictly after ref → next day
			name: "boundary rolls", offset: 7, hour: 9, minute: 0,
			ref: "2024-01-01T02:00:00Z", want: "2024-01-02T02:00:00Z",
		},
		{
			name: "zero offset", offset: 0, hour: 23, minute: 59,
			ref: "2024-06-15T10:00:00Z", want: "2024-06-15T23:59:00Z",
		},
		{
			// local is behind UTC
			name: "negative offset", offset: -5, hour: 9, minute: 0,
			ref: "2024-01-01T13:30:00Z", want: "2024-01-01T14:00:00Z",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := New(Config{UTCOffsetHours: tt.offset, Label: "TST"})
			ref, err := time.Parse(time.RFC3339, tt.ref)
			if err != nil {
				t.Fatalf("parse ref: %v", err)
			}
			got := c.NextOccurrenceUTC(tt.hour, tt.minute, ref)
			want, _ := time.Parse(time.RFC3339, tt.want)
			if !got.Equal(want) {
				t.Fatalf("NextOccurrenceUTC = %s, want %s", got, want)
			}
		})
	}
}

func TestNextOccurrenceBounds(t *testing.T) {
	t.Parallel()
	c := New(Config{UTCOffsetHours: 7, Label: "WIB"})
	ref := time.Date(2024, 3, 10, 17, 45, 12, 0, time.UTC)

	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 30, 59} {
			got := c.NextOccurrenceUTC(hour, minute, ref)
			if !got.After(ref) {
				t.Fatalf("%02d:%02d: result %s not strictly after ref %s", hour, minute, got, ref)
			}
			if got.Sub(ref) > 24*time.Hour {
				t.Fatalf("%02d:%02d: result %s more than 24h after ref", hour, minute, got)
			}
			if got.Second() != 0 || got.Nanosecond() != 0 {
				t.Fatalf("%02d:%02d: sub-minute precision not zeroed: %s", hour, minute, got)
			}
		}
	}
}

func TestFormatLocal(t *testing.T) {
	t.Parallel()
	c := New(Config{UTCOffsetHours: 7, Label: "WIB"})
	at := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	if got := c.FormatLocal(at); got != "09:00 WIB" {
		t.Fatalf("FormatLocal = %q, want %q", got, "09:00 WIB")
	}
}

func TestDefaultLabel(t *testing.T) {
	t.Parallel()
	if got := New(Config{UTCOffsetHours: -3}).Label(); got != "UTC-3" {
		t.Fatalf("Label = %q, want UTC-3", got)
	}
}
