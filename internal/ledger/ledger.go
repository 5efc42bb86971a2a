// Package ledger persists per-user token balances. It is plain keyed CRUD:
// (user_id, token_symbol) -> balance, with a file backend and a SQLite
// backend behind one interface.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "optobot/pkg/logx"
)

var (
	ErrDisabled = errors.New("ledger disabled")
	// ErrInsufficientFunds rejects a decrement below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Config configures the ledger.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", the ledger is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the balance persistence API.
type Store interface {
	// Get returns the balance and whether the key exists.
	Get(ctx context.Context, userID, symbol string) (float64, bool, error)
	// All returns every balance for the user, keyed by symbol.
	All(ctx context.Context, userID string) (map[string]float64, error)
	Set(ctx context.Context, userID, symbol string, balance float64) error
	// Increment adds delta (must be >= 0) and returns the new balance.
	Increment(ctx context.Context, userID, symbol string, delta float64) (float64, error)
	// Decrement subtracts delta (must be >= 0); it fails with
	// ErrInsufficientFunds when the balance would go negative.
	Decrement(ctx context.Context, userID, symbol string, delta float64) (float64, error)
	Delete(ctx context.Context, userID, symbol string) error
	DeleteAll(ctx context.Context, userID string) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if the ledger is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}
