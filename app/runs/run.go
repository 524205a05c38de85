// Package runs owns the lifecycle of aggregation runs.
package runs

import (
	"context"
	"sync"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/progress"
	"github.com/lysyi3m/event-comb/app/source"
)

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// Run is one execution of the scheduler over a list of sources.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Sources     []source.Descriptor
	Concurrency int

	tracker *progress.Tracker
	merger  *event.Merger
	broker  *progress.Broker[progress.Update]
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.RWMutex
	state      State
	finishedAt *time.Time
}

// Snapshot is a point-in-time copy of a run.
type Snapshot struct {
	ID          string                  `json:"id"`
	State       State                   `json:"state"`
	CreatedAt   time.Time               `json:"createdAt"`
	FinishedAt  *time.Time              `json:"finishedAt,omitempty"`
	Concurrency int                     `json:"concurrency"`
	Progress    progress.Summary        `json:"progress"`
	Statuses    []progress.SourceStatus `json:"statuses"`
	Events      []event.Candidate       `json:"events"`
	Warnings    []string                `json:"warnings"`
}

func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Done is closed once the caller has stopped waiting for the run, either
// because every source finished or because the run was stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Subscribe streams progress events until the run is done or ctx ends.
func (r *Run) Subscribe(ctx context.Context) <-chan progress.Event[progress.Update] {
	return r.broker.Subscribe(ctx)
}

func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	state := r.state
	var finishedAt *time.Time
	if r.finishedAt != nil {
		at := *r.finishedAt
		finishedAt = &at
	}
	r.mu.RUnlock()

	result := r.merger.Result()

	return Snapshot{
		ID:          r.ID,
		State:       state,
		CreatedAt:   r.CreatedAt,
		FinishedAt:  finishedAt,
		Concurrency: r.Concurrency,
		Progress:    r.tracker.Progress(),
		Statuses:    r.tracker.Snapshot(),
		Events:      result.Events,
		Warnings:    result.Warnings,
	}
}

func (r *Run) finish(state State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.state = state
	r.finishedAt = &now
}
