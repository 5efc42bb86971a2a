// Package publisher delivers post texts to the rate-limited posting endpoint
// and classifies the outcome. It never retries: Throttled and Failed are
// terminal results for the caller to act on.
package publisher

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"optobot/internal/generator"
	logx "optobot/pkg/logx"
)

// ErrThrottled signals the endpoint's quota is exhausted for the current
// window. Endpoint implementations return it (possibly wrapped) so the
// publisher can classify the outcome.
var ErrThrottled = errors.New("posting endpoint throttled")

// Status classifies one publish attempt.
type Status int

const (
	StatusPosted Status = iota
	StatusThrottled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPosted:
		return "posted"
	case StatusThrottled:
		return "throttled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the publisher's report for one text.
type Outcome struct {
	Status Status
	Reason string
}

// Endpoint performs the actual post. A nil error means accepted.
type Endpoint interface {
	Post(ctx context.Context, text string) error
}

// Publisher clamps, paces and delivers texts.
type Publisher struct {
	ep      Endpoint
	log     logx.Logger
	limiter *rate.Limiter
}

// New builds a Publisher. ratePerMin paces outbound posts locally (token
// bucket, burst 1) so our own traffic shape stays under the endpoint's
// quota; it does not replace the endpoint's throttle signal.
func New(ep Endpoint, ratePerMin int, log logx.Logger) *Publisher {
	if ratePerMin <= 0 {
		ratePerMin = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{
		ep:      ep,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMin)/60.0), 1),
	}
}

// Publish sends one text. The 280-char limit is re-checked here even though
// the builder already enforced it; clamping is idempotent. Exactly one
// status line is emitted per outcome.
func (p *Publisher) Publish(ctx context.Context, text string) Outcome {
	text = generator.ClampPost(text)

	if err := p.limiter.Wait(ctx); err != nil {
		out := Outcome{Status: StatusFailed, Reason: err.Error()}
		p.log.Warn("post aborted before send", logx.Err(err))
		return out
	}

	err := p.ep.Post(ctx, text)
	switch {
	case err == nil:
		p.log.Info("post published", logx.String("text", text))
		return Outcome{Status: StatusPosted}
	case errors.Is(err, ErrThrottled):
		p.log.Warn("post throttled by endpoint", logx.Err(err))
		return Outcome{Status: StatusThrottled, Reason: err.Error()}
	default:
		p.log.Error("post failed", logx.Err(err))
		return Outcome{Status: StatusFailed, Reason: err.Error()}
	}
}
