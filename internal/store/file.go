package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	logx "remindbot/pkg/logx"
)

// fileStore keeps the snapshot as a single JSON document. Writes go to a
// temp file in the same directory followed by os.Rename, so a crash or a
// full disk mid-write never corrupts the previously valid snapshot.
type fileStore struct {
	log  logx.Logger
	path string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) LoadAll(ctx context.Context) (Snapshot, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		// Unreadable snapshot degrades to empty state: starting with no
		// reminders beats refusing to start.
		s.log.Warn("snapshot unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		return Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.log.Warn("snapshot parse failed; starting empty", logx.String("path", s.path), logx.Err(err))
		return Snapshot{}, nil
	}
	if snap == nil {
		snap = Snapshot{}
	}
	for recipient, entries := range snap {
		for i := range entries {
			entries[i].FireAt = entries[i].FireAt.UTC()
		}
		snap[recipient] = entries
	}
	return snap, nil
}

func (s *fileStore) SaveAll(ctx context.Context, snap Snapshot) error {
	_ = ctx
	if snap == nil {
		snap = Snapshot{}
	}
	b, err := json.MarshalIndent(normalizeUTC(snap), "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }

func normalizeUTC(snap Snapshot) Snapshot {
	out := make(Snapshot, len(snap))
	for recipient, entries := range snap {
		cp := make([]Entry, len(entries))
		for i, e := range entries {
			cp[i] = Entry{FireAt: e.FireAt.UTC(), Message: e.Message}
		}
		out[recipient] = cp
	}
	return out
}
