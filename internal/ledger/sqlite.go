package ledger

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

	logx "optobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("ledger.path is required for sqlite driver")
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
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Get(ctx context.Context, userID, symbol string) (float64, bool, error) {
	var v float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE user_id = ? AND symbol = ?`, userID, symbol).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (s *sqliteStore) All(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, balance FROM balances WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var sym string
		var v float64
		if err := rows.Scan(&sym, &v); err != nil {
			return nil, err
		}
		out[sym] = v
	}
	return out, rows.Err()
}

func (s *sqliteStore) Set(ctx context.Context, userID, symbol string, balance float64) error {
	if userID == "" || symbol == "" {
		return errors.New("user and symbol are required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balances(user_id, symbol, balance, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id, symbol) DO UPDATE SET balance=excluded.balance, updated_at=excluded.updated_at`,
		userID, symbol, balance, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *sqliteStore) Increment(ctx context.Context, userID, symbol string, delta float64) (float64, error) {
	if delta < 0 {
		return 0, errors.New("delta must be >= 0")
	}
	cur, _, err := s.Get(ctx, userID, symbol)
	if err != nil {
		return 0, err
	}
	next := cur + delta
	if err := s.Set(ctx, userID, symbol, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *sqliteStore) Decrement(ctx context.Context, userID, symbol string, delta float64) (float64, error) {
	if delta < 0 {
		return 0, errors.New("delta must be >= 0")
	}
	cur, _, err := s.Get(ctx, userID, symbol)
	if err != nil {
		return 0, err
	}
	if cur < delta {
		return cur, fmt.Errorf("%w: have %v, need %v", ErrInsufficientFunds, cur, delta)
	}
	next := cur - delta
	if err := s.Set(ctx, userID, symbol, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM balances WHERE user_id = ? AND symbol = ?`, userID, symbol)
	return err
}

func (s *sqliteStore) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM balances WHERE user_id = ?`, userID)
	return err
}
