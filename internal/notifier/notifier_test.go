package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "optobot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeSender) Send(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func TestAlertDeliversThroughWorker(t *testing.T) {
	fs := &fakeSender{}
	s := New(Config{Enabled: true, ChatID: 1, RatePerSec: 1000}, fs, logx.Nop())
	s.Start(context.Background())

	if err := s.Alert(context.Background(), "pass complete: 4 scheduled"); err != nil {
		t.Fatal(err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	got := fs.sent()
	if len(got) != 1 || got[0] != "pass complete: 4 scheduled" {
		t.Fatalf("sent = %v", got)
	}
}

func TestAlertDedupWindow(t *testing.T) {
	fs := &fakeSender{}
	s := New(Config{Enabled: true, ChatID: 1, RatePerSec: 1000, DedupWindow: time.Minute}, fs, logx.Nop())
	s.Start(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Alert(context.Background(), "throttled: daily cap"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Alert(context.Background(), "another alert"); err != nil {
		t.Fatal(err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	got := fs.sent()
	if len(got) != 2 {
		t.Fatalf("sent = %v, want dedup to collapse repeats", got)
	}
}

func TestAlertDisabled(t *testing.T) {
	s := New(Config{Enabled: false}, &fakeSender{}, logx.Nop())
	s.Start(context.Background())
	if err := s.Alert(context.Background(), "x"); err != ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestAlertAfterStop(t *testing.T) {
	fs := &fakeSender{}
	s := New(Config{Enabled: true, ChatID: 1}, fs, logx.Nop())
	s.Start(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	if err := s.Alert(context.Background(), "late"); err != ErrStopped {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
