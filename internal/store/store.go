// Package store persists the controller state and its emergency event log in
// SQLite. Each committed invocation is written in one transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/reservectl/internal/ledger"
	"github.com/danmuck/reservectl/internal/store/migrations"
	_ "modernc.org/sqlite"
)

var ErrNotConfigured = errors.New("store: not configured")

// Commit is everything one successful invocation persists.
type Commit struct {
	State  ledger.State
	Events []ledger.EmergencyEvent
	Data   []byte
	At     time.Time
}

// Invocation is one committed instruction in log order.
type Invocation struct {
	ID        int64     `json:"id"`
	Opcode    uint8     `json:"opcode"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides SQLite-backed controller persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a store at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}

// Load returns the persisted state. found is false before the first commit.
func (s *Store) Load(ctx context.Context) (st ledger.State, found bool, err error) {
	if err := s.ready(ctx); err != nil {
		return ledger.State{}, false, err
	}
	var blob []byte
	err = s.sqlDB.QueryRowContext(ctx, "SELECT state FROM controller_state WHERE id = 1").Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.State{}, false, nil
	}
	if err != nil {
		return ledger.State{}, false, fmt.Errorf("load state: %w", err)
	}
	st, err = ledger.DecodeState(blob)
	if err != nil {
		return ledger.State{}, false, fmt.Errorf("decode state: %w", err)
	}
	return st, true, nil
}

// Commit writes the state, the invocation and its events atomically.
func (s *Store) Commit(ctx context.Context, c Commit) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO controller_state (id, codec_version, state, updated_at)
VALUES (1, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	codec_version = excluded.codec_version,
	state = excluded.state,
	updated_at = excluded.updated_at
`, ledger.CodecVersion, ledger.EncodeState(c.State), c.At.UnixMilli()); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	var opcode uint8
	if len(c.Data) > 0 {
		opcode = c.Data[0]
	} else {
		c.Data = []byte{}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO invocations (opcode, data, created_at) VALUES (?, ?, ?)",
		opcode, c.Data, c.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write invocation: %w", err)
	}
	invocationID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("invocation id: %w", err)
	}

	for _, ev := range c.Events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO emergency_events (invocation_id, emergency_type, trigger, override_count, event_ts)
VALUES (?, ?, ?, ?, ?)
`, invocationID, uint32(ev.Type), ev.Trigger, strconv.FormatUint(ev.OverrideCount, 10), ev.Timestamp); err != nil {
			return fmt.Errorf("write emergency event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListEvents lists newest-first emergency events.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]ledger.EmergencyEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT emergency_type, trigger, override_count, event_ts
FROM emergency_events
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]ledger.EmergencyEvent, 0, limit)
	for rows.Next() {
		var (
			ev    ledger.EmergencyEvent
			kind  int64
			count string
		)
		if err := rows.Scan(&kind, &ev.Trigger, &count, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = ledger.EmergencyType(kind)
		if ev.OverrideCount, err = strconv.ParseUint(count, 10, 64); err != nil {
			return nil, fmt.Errorf("parse override count: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListInvocations lists committed invocations oldest-first, starting after id.
func (s *Store) ListInvocations(ctx context.Context, after int64, limit int) ([]Invocation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, opcode, data, created_at
FROM invocations
WHERE id > ?
ORDER BY id ASC
LIMIT ?
`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	out := make([]Invocation, 0, limit)
	for rows.Next() {
		var (
			inv       Invocation
			createdAt int64
		)
		if err := rows.Scan(&inv.ID, &inv.Opcode, &inv.Data, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return out, nil
}
