package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "optobot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.balances.snapshot.json (periodic snapshot)
//   - <prefix>.balances.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	journalPath  string

	// balances[userID][symbol]
	balances map[string]map[string]float64

	writes int
}

type journalRecord struct {
	User   string  `json:"user"`
	Symbol string  `json:"symbol,omitempty"`
	Value  float64 `json:"value,omitempty"`
	// Op is "set", "del" or "delall".
	Op string `json:"op"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".balances.snapshot.json"
	journalPath := prefix + ".balances.journal.jsonl"

	balances := map[string]map[string]float64{}
	_ = loadSnapshot(snapPath, &balances)
	_ = replayJournal(journalPath, balances)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		journalPath:  journalPath,
		balances:     balances,
	}, nil
}

func loadSnapshot(path string, out *map[string]map[string]float64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func replayJournal(path string, balances map[string]map[string]float64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			// Torn tail write; stop replay here.
			return nil
		}
		applyRecord(balances, rec)
	}
	return nil
}

func applyRecord(balances map[string]map[string]float64, rec journalRecord) {
	switch rec.Op {
	case "set":
		m := balances[rec.User]
		if m == nil {
			m = map[string]float64{}
			balances[rec.User] = m
		}
		m[rec.Symbol] = rec.Value
	case "del":
		if m := balances[rec.User]; m != nil {
			delete(m, rec.Symbol)
			if len(m) == 0 {
				delete(balances, rec.User)
			}
		}
	case "delall":
		delete(balances, rec.User)
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Get(ctx context.Context, userID, symbol string) (float64, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.balances[userID]
	if m == nil {
		return 0, false, nil
	}
	v, ok := m[symbol]
	return v, ok, nil
}

func (s *fileStore) All(ctx context.Context, userID string) (map[string]float64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]float64{}
	for sym, v := range s.balances[userID] {
		out[sym] = v
	}
	return out, nil
}

func (s *fileStore) Set(ctx context.Context, userID, symbol string, balance float64) error {
	_ = ctx
	if userID == "" || symbol == "" {
		return errors.New("user and symbol are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(userID, symbol, balance)
}

func (s *fileStore) Increment(ctx context.Context, userID, symbol string, delta float64) (float64, error) {
	_ = ctx
	if delta < 0 {
		return 0, errors.New("delta must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balances[userID][symbol]
	next := cur + delta
	if err := s.setLocked(userID, symbol, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *fileStore) Decrement(ctx context.Context, userID, symbol string, delta float64) (float64, error) {
	_ = ctx
	if delta < 0 {
		return 0, errors.New("delta must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.balances[userID][symbol]
	if cur < delta {
		return cur, fmt.Errorf("%w: have %v, need %v", ErrInsufficientFunds, cur, delta)
	}
	next := cur - delta
	if err := s.setLocked(userID, symbol, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *fileStore) Delete(ctx context.Context, userID, symbol string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := journalRecord{User: userID, Symbol: symbol, Op: "del"}
	applyRecord(s.balances, rec)
	return s.appendLocked(rec)
}

func (s *fileStore) DeleteAll(ctx context.Context, userID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := journalRecord{User: userID, Op: "delall"}
	applyRecord(s.balances, rec)
	return s.appendLocked(rec)
}

func (s *fileStore) setLocked(userID, symbol string, balance float64) error {
	rec := journalRecord{User: userID, Symbol: symbol, Value: balance, Op: "set"}
	applyRecord(s.balances, rec)
	return s.appendLocked(rec)
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return errors.New("ledger journal closed")
	}
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("ledger compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked rewrites the snapshot from memory and truncates the journal.
func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	b, err := json.Marshal(s.balances)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 0)
	return err
}
