package config

import (
	"errors"
	"fmt"
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Clock      ClockConfig      `json:"clock"`
	Reminders  RemindersConfig  `json:"reminders"`
	Broadcasts BroadcastsConfig `json:"broadcasts"`
	Storage    *StorageConfig   `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// EmergencyContact is the operator chat id that receives alerts and
	// daily broadcasts. Required.
	EmergencyContact string `json:"emergency_contact"`
	// GroupLog is an optional chat id used as a log sink.
	GroupLog string `json:"group_log,omitempty"`
	// EmergencyKeywords overrides the built-in keyword list when non-empty.
	EmergencyKeywords []string `json:"emergency_keywords,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ClockConfig pins the process-wide local timezone used to interpret
// reminder times coming from chat.
type ClockConfig struct {
	UTCOffsetHours int    `json:"utc_offset_hours"`
	Label          string `json:"label,omitempty"`
}

// RemindersConfig controls the due-reminder sweep and delivery.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type RemindersConfig struct {
	SweepInterval string `json:"sweep_interval,omitempty"` // default "60s"
	SendTimeout   string `json:"send_timeout,omitempty"`   // default "10s"
	RatePerSec    int    `json:"rate_per_sec,omitempty"`   // default 3
}

type BroadcastsConfig struct {
	// Path of the daily broadcast definitions file. Optional.
	Path string `json:"path,omitempty"`
}

// StorageConfig selects the persistence driver for the reminder snapshot.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./reminders.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Addr        string `json:"addr,omitempty"`         // redis
	Password    string `json:"password,omitempty"`     // redis
	DB          int    `json:"db,omitempty"`           // redis
}

// Validate checks the fields that cannot be defaulted. It is also the reload
// validator: a config failing here is rejected without being committed.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.EmergencyContact == "" {
		return errors.New("telegram.emergency_contact is required")
	}
	if c.Clock.UTCOffsetHours < -12 || c.Clock.UTCOffsetHours > 14 {
		return fmt.Errorf("clock.utc_offset_hours %d out of range", c.Clock.UTCOffsetHours)
	}
	for _, f := range []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"reminders.sweep_interval", c.Reminders.SweepInterval},
		{"reminders.send_timeout", c.Reminders.SendTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
