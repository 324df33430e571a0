// Package store persists the pending-reminder snapshot.
//
// The snapshot is always written whole (save-all, not a diff) and read
// exactly once at startup. Drivers:
//   - "file": JSON snapshot with atomic rename
//   - "sqlite": SQLite database file
//   - "redis": single JSON value in Redis
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Entry is one pending reminder as persisted. FireAt is an absolute UTC
// instant; serialized forms must round-trip it exactly. Unknown extra
// fields in stored data are ignored on load (forward compatibility).
type Entry struct {
	FireAt  time.Time `json:"fire_at"`
	Message string    `json:"message"`
}

// Snapshot maps a recipient identifier to its ordered pending reminders.
type Snapshot map[string][]Entry

// Clone returns a deep copy so callers can hand a Snapshot across a
// goroutine boundary without sharing slices.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	for recipient, entries := range s {
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		out[recipient] = cp
	}
	return out
}

// Store is the durable reminder store.
//
// LoadAll returns an empty (non-nil) Snapshot when nothing has been
// persisted yet. SaveAll replaces the previously stored snapshot; a failed
// save must leave the prior on-disk state valid.
type Store interface {
	LoadAll(ctx context.Context) (Snapshot, error)
	SaveAll(ctx context.Context, snap Snapshot) error
	Close() error
}

// Config configures the store.
//
// If Driver is empty, "file" is assumed.
type Config struct {
	Driver      string
	Path        string        // file/sqlite: filesystem path; redis: key (optional)
	BusyTimeout time.Duration // sqlite only; 0 means default
	Addr        string        // redis only
	Password    string        // redis only
	DB          int           // redis only
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
