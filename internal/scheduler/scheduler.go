// Package scheduler owns the stagger schedule: an in-memory job queue, an
// immediate-send path and a polling loop that routes due jobs to the
// publisher. The pipeline is single-threaded on purpose: one dispatch runs
// to completion before the next, and the queue is rebuilt from scratch on
// restart (no persistence).
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"optobot/internal/fallback"
	"optobot/internal/generator"
	"optobot/internal/publisher"
	logx "optobot/pkg/logx"
)

const (
	// DefaultPollInterval is how often the loop checks for due jobs.
	DefaultPollInterval = 60 * time.Second
	// DefaultStaggerUnit spaces staggered jobs apart.
	DefaultStaggerUnit = 2 * time.Hour

	// terminalKeep caps how many finished jobs stay visible in snapshots.
	terminalKeep = 200
)

// Config controls the scheduler.
type Config struct {
	PollInterval time.Duration
	StaggerUnit  time.Duration
}

// OutcomeHook observes every finished dispatch (for alerts/metrics). It runs
// on the scheduler goroutine, so keep it cheap.
type OutcomeHook func(job Job, out publisher.Outcome)

// Service is the stagger scheduler.
type Service struct {
	mu sync.Mutex

	// sendMu serializes dispatches. Immediate sends can arrive from the
	// cron/API goroutines while the polling loop works through due jobs;
	// holding this across the publish keeps at most one dispatch in flight.
	sendMu sync.Mutex

	log      logx.Logger
	pub      Dispatcher
	defaults *fallback.Source
	cfg      Config
	hook     OutcomeHook

	jobs []*Job

	// now is swapped in tests for a fake clock.
	now func() time.Time
}

func New(cfg Config, pub Dispatcher, defaults *fallback.Source, log logx.Logger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StaggerUnit <= 0 {
		cfg.StaggerUnit = DefaultStaggerUnit
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaults == nil {
		defaults = fallback.New(nil)
	}
	return &Service{
		log:      log,
		pub:      pub,
		defaults: defaults,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetOutcomeHook installs the dispatch observer. Call before Run.
func (s *Service) SetOutcomeHook(h OutcomeHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// ScheduleImmediate enqueues content due now and dispatches it synchronously,
// before any polling happens. It returns the finished job.
func (s *Service) ScheduleImmediate(ctx context.Context, content *generator.Content) Job {
	job := s.enqueue(content, s.now())
	s.dispatch(ctx, job.ID)
	return s.get(job.ID)
}

// ScheduleStaggered enqueues the remaining batch: the i-th item (1-indexed)
// becomes due at now + i*stagger_unit, so due times strictly increase across
// the batch.
func (s *Service) ScheduleStaggered(contents []generator.Content) []Job {
	base := s.now()
	out := make([]Job, 0, len(contents))
	for i := range contents {
		c := contents[i]
		due := base.Add(time.Duration(i+1) * s.cfg.StaggerUnit)
		job := s.enqueue(&c, due)
		out = append(out, job)
		s.log.Info("post scheduled",
			logx.String("job", job.ID),
			logx.String("token", c.TokenLabel),
			logx.Time("due_at", due))
	}
	return out
}

// ScheduleFallback enqueues a payload-less job; its dispatch will draw from
// the fallback rotation.
func (s *Service) ScheduleFallback(due time.Time) Job {
	return s.enqueue(nil, due)
}

// Run polls until ctx is canceled. Every tick dispatches all due Pending
// jobs, oldest due time first, FIFO among equals. A failure inside one
// dispatch never stops the loop.
func (s *Service) Run(ctx context.Context) {
	s.mu.Lock()
	interval := s.cfg.PollInterval
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("scheduler loop started", logx.Duration("poll_interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler loop stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every Pending job whose due time has elapsed.
func (s *Service) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*Job, 0, 4)
	for _, j := range s.jobs {
		if j.State == StatePending && !j.DueAt.After(now) {
			due = append(due, j)
		}
	}
	// Jobs are appended in enqueue order; a stable sort by due time keeps
	// FIFO within the tick while guaranteeing non-decreasing dispatch order.
	sort.SliceStable(due, func(i, k int) bool { return due[i].DueAt.Before(due[k].DueAt) })
	ids := make([]string, len(due))
	for i, j := range due {
		ids[i] = j.ID
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.dispatch(ctx, id)
	}
	if len(ids) > 0 {
		s.pruneTerminal()
	}
}

// dispatch runs one job through the publisher exactly once and records the
// terminal state. Panics are contained so one bad dispatch cannot kill the
// polling loop.
func (s *Service) dispatch(ctx context.Context, id string) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	var job *Job
	for _, j := range s.jobs {
		if j.ID == id {
			job = j
			break
		}
	}
	if job == nil || job.State != StatePending {
		s.mu.Unlock()
		return
	}
	job.State = StateDispatched
	payload := job.Payload
	hook := s.hook
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			job.State = StateFailed
			job.Reason = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
			s.log.Error("panic in dispatch",
				logx.String("job", id), logx.Any("panic", r),
				logx.Stack(string(debug.Stack())))
		}
	}()

	text := ""
	label := "(fallback)"
	if payload != nil {
		text = payload.Body
		label = payload.TokenLabel
	} else {
		text = s.defaults.Next()
	}

	out := s.pub.Publish(ctx, text)

	s.mu.Lock()
	switch out.Status {
	case publisher.StatusPosted:
		job.State = StatePosted
	case publisher.StatusThrottled:
		job.State = StateThrottled
		job.Reason = out.Reason
	default:
		job.State = StateFailed
		job.Reason = out.Reason
	}
	done := *job
	s.mu.Unlock()

	s.log.Info("job dispatched",
		logx.String("job", id),
		logx.String("token", label),
		logx.String("state", done.State.String()),
		logx.String("reason", done.Reason))

	if hook != nil {
		hook(done, out)
	}
}

func (s *Service) enqueue(content *generator.Content, due time.Time) Job {
	j := &Job{
		ID:      uuid.NewString(),
		DueAt:   due,
		Payload: content,
		State:   StatePending,
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()
	return *j
}

func (s *Service) get(id string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			return *j
		}
	}
	return Job{}
}

// pruneTerminal drops the oldest finished jobs beyond the snapshot cap so a
// long-running process doesn't accumulate history without bound.
func (s *Service) pruneTerminal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	terminal := 0
	for _, j := range s.jobs {
		if j.State.Terminal() {
			terminal++
		}
	}
	if terminal <= terminalKeep {
		return
	}
	drop := terminal - terminalKeep
	kept := s.jobs[:0]
	for _, j := range s.jobs {
		if drop > 0 && j.State.Terminal() {
			drop--
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept
}

// Snapshot returns a copy of the queue for the status API.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Jobs: make([]Job, 0, len(s.jobs))}
	for _, j := range s.jobs {
		snap.Jobs = append(snap.Jobs, *j)
		switch j.State {
		case StatePending, StateDispatched:
			snap.Pending++
		case StatePosted:
			snap.Posted++
		case StateThrottled:
			snap.Throttled++
		case StateFailed:
			snap.Failed++
		}
	}
	return snap
}
