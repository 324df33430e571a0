package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) LoadAll(ctx context.Context) (Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient, fire_at, message FROM reminders ORDER BY recipient, position`)
	if err != nil {
		s.log.Warn("snapshot query failed; starting empty", logx.Err(err))
		return Snapshot{}, nil
	}
	defer rows.Close()

	snap := Snapshot{}
	for rows.Next() {
		var recipient, fireAt, message string
		if err := rows.Scan(&recipient, &fireAt, &message); err != nil {
			s.log.Warn("snapshot row skipped", logx.Err(err))
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, fireAt)
		if err != nil {
			s.log.Warn("snapshot row has bad fire_at; skipped",
				logx.String("recipient", recipient), logx.String("fire_at", fireAt))
			continue
		}
		snap[recipient] = append(snap[recipient], Entry{FireAt: at.UTC(), Message: message})
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("snapshot scan incomplete", logx.Err(err))
	}
	return snap, nil
}

// SaveAll replaces the stored snapshot in one transaction, so readers never
// observe a half-written state.
func (s *sqliteStore) SaveAll(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reminders`); err != nil {
		return err
	}
	for recipient, entries := range snap {
		for i, e := range entries {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO reminders(recipient, fire_at, message, position) VALUES(?,?,?,?)`,
				recipient, e.FireAt.UTC().Format(time.RFC3339Nano), e.Message, i)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
