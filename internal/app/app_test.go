package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const smokeConfig = `{
  "logging": {"level": "error", "console": false, "file": {"enabled": false, "path": ""}},
  "feed": {"base_url": "http://127.0.0.1:1"},
  "generator": {"api_key": "test-key", "model": "gpt-4o-mini"},
  "publisher": {"base_url": "http://127.0.0.1:1"},
  "scheduler": {"poll_interval": "1h"},
  "pipeline": {"run_on_start": false},
  "ledger": {"driver": "file", "path": "LEDGER_PATH"}
}`

func writeSmokeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	cfg := strings.ReplaceAll(smokeConfig, "LEDGER_PATH", filepath.ToSlash(filepath.Join(dir, "ledger.db")))
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStartStopLifecycle(t *testing.T) {
	a, err := New(writeSmokeConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Start is idempotent.
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	// Stop after stop is a no-op.
	if err := a.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging": {}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path); err == nil {
		t.Fatal("want error for config missing required fields")
	}
}
