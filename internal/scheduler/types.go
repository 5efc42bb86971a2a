package scheduler

import (
	"context"
	"time"

	"optobot/internal/generator"
	"optobot/internal/publisher"
)

// State is a job's position in its lifecycle. Transitions are
// Pending -> Dispatched -> one of the terminal states; a terminal job never
// returns to Pending on its own.
type State int

const (
	StatePending State = iota
	StateDispatched
	StatePosted
	StateThrottled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDispatched:
		return "dispatched"
	case StatePosted:
		return "posted"
	case StateThrottled:
		return "throttled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StatePosted || s == StateThrottled || s == StateFailed
}

// Job binds "what to publish" to "when". A nil Payload means the dispatch
// draws from the fallback message source.
type Job struct {
	ID      string
	DueAt   time.Time
	Payload *generator.Content
	State   State
	Reason  string
}

// Dispatcher is the publish seam; *publisher.Publisher satisfies it.
type Dispatcher interface {
	Publish(ctx context.Context, text string) publisher.Outcome
}

// Snapshot is a point-in-time view of the queue for the status API.
type Snapshot struct {
	Pending   int
	Posted    int
	Throttled int
	Failed    int
	Jobs      []Job
}
