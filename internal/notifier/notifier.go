// Package notifier delivers operator alerts to a Telegram chat.
// Alerts are best-effort: a full queue or a send error never blocks the
// publishing pipeline.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	logx "optobot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Sender abstracts the outbound chat transport.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// TelegramSender sends via the Bot API. It is send-only; no poller runs.
type TelegramSender struct {
	bot *tele.Bot
}

func NewTelegramSender(token string) (*TelegramSender, error) {
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

func (t *TelegramSender) Send(ctx context.Context, chatID int64, text string) error {
	_ = ctx // telebot manages its own request timeouts
	_, err := t.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}

type Config struct {
	Enabled     bool
	ChatID      int64
	RatePerSec  int
	DedupWindow time.Duration
	QueueSize   int
}

// Service is an async alert queue: one worker, rate limited, with a
// suppression window for repeated identical alerts.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	sender  Sender
	cfg     Config
	limiter *rate.Limiter

	queue     chan string
	accepting bool
	done      chan struct{}

	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	return &Service{
		log:     log,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled && s.sender != nil
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.sender == nil || s.queue != nil {
		return
	}
	s.queue = make(chan string, s.cfg.QueueSize)
	s.done = make(chan struct{})
	s.accepting = true
	go s.workerLoop(ctx, s.queue, s.done)
}

// Stop blocks new alerts and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.done
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.mu.Unlock()

	close(q)
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Alert enqueues an operator message. Duplicate texts inside the dedup
// window are silently suppressed.
func (s *Service) Alert(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	s.mu.Lock()
	if !s.cfg.Enabled || s.sender == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	if window > 0 && !s.dedupAllow(dedupKey(text), window) {
		return nil
	}

	select {
	case q <- text:
		return nil
	default:
		s.log.Warn("alert dropped", logx.String("reason", "queue full"))
		return ErrQueueFull
	}
}

// Alertf formats and enqueues an operator message.
func (s *Service) Alertf(ctx context.Context, format string, args ...any) error {
	return s.Alert(ctx, fmt.Sprintf(format, args...))
}

func (s *Service) workerLoop(ctx context.Context, q <-chan string, done chan struct{}) {
	defer close(done)
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, text)
		}
	}
}

func (s *Service) send(ctx context.Context, text string) {
	s.mu.Lock()
	lim := s.limiter
	sender := s.sender
	chatID := s.cfg.ChatID
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sender.Send(callCtx, chatID, text); err != nil {
		s.log.Warn("alert send failed", logx.Err(err))
	}
}

func dedupKey(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}
