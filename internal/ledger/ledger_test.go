package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "optobot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: want nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("want error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, ok, _ := st.Get(ctx, "alice", "ETH"); ok {
		t.Fatal("fresh store must be empty")
	}

	if err := st.Set(ctx, "alice", "ETH", 1.5); err != nil {
		t.Fatal(err)
	}
	if v, err := st.Increment(ctx, "alice", "ETH", 0.5); err != nil || v != 2.0 {
		t.Fatalf("increment = %v, %v", v, err)
	}
	if v, err := st.Decrement(ctx, "alice", "ETH", 1.0); err != nil || v != 1.0 {
		t.Fatalf("decrement = %v, %v", v, err)
	}

	if err := st.Set(ctx, "alice", "SOL", 3); err != nil {
		t.Fatal(err)
	}
	all, err := st.All(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all["ETH"] != 1.0 || all["SOL"] != 3 {
		t.Fatalf("all = %v", all)
	}

	if err := st.Delete(ctx, "alice", "SOL"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := st.Get(ctx, "alice", "SOL"); ok {
		t.Fatal("deleted key still present")
	}

	if err := st.DeleteAll(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	all, _ = st.All(ctx, "alice")
	if len(all) != 0 {
		t.Fatalf("all after delete-all = %v", all)
	}
}

func TestFileStoreDecrementInsufficient(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ledger.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.Set(ctx, "bob", "ETH", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Decrement(ctx, "bob", "ETH", 2); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	// The failed decrement must not touch the balance.
	if v, _, _ := st.Get(ctx, "bob", "ETH"); v != 1 {
		t.Fatalf("balance = %v, want 1", v)
	}
	if _, err := st.Decrement(ctx, "bob", "ETH", -1); err == nil {
		t.Fatal("negative delta must be rejected")
	}
}

func TestFileStoreJournalReplay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "carol", "BTC", 0.25); err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "carol", "ETH", 4); err != nil {
		t.Fatal(err)
	}
	if err := st.Delete(ctx, "carol", "ETH"); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if v, ok, _ := reopened.Get(ctx, "carol", "BTC"); !ok || v != 0.25 {
		t.Fatalf("BTC after replay = %v, %v", v, ok)
	}
	if _, ok, _ := reopened.Get(ctx, "carol", "ETH"); ok {
		t.Fatal("deleted ETH survived replay")
	}
}

func TestFileStoreTornJournalTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Set(ctx, "dan", "ETH", 7); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-append.
	journal := filepath.Join(filepath.Dir(path), "ledger.balances.journal.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"user":"dan","sym`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if v, ok, _ := reopened.Get(ctx, "dan", "ETH"); !ok || v != 7 {
		t.Fatalf("balance after torn tail = %v, %v", v, ok)
	}
}
