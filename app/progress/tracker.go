package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/event-comb/app/source"
)

var (
	ErrIllegalTransition = errors.New("illegal state transition")
	ErrUnknownSource     = errors.New("unknown source")
)

// Tracker holds one SourceStatus per descriptor of a run. Each entry is
// written by the worker that owns the source; readers get copies.
type Tracker struct {
	mu       sync.RWMutex
	order    []string
	statuses map[string]*SourceStatus
	broker   *Broker[Update]
}

// NewTracker creates a tracker with every source Pending. broker may be nil.
func NewTracker(sources []source.Descriptor, broker *Broker[Update]) *Tracker {
	t := &Tracker{
		order:    make([]string, 0, len(sources)),
		statuses: make(map[string]*SourceStatus, len(sources)),
		broker:   broker,
	}

	for _, src := range sources {
		if _, exists := t.statuses[src.ID]; exists {
			continue
		}
		t.order = append(t.order, src.ID)
		t.statuses[src.ID] = &SourceStatus{
			ID:          src.ID,
			DisplayName: src.DisplayName,
			State:       StatePending,
		}
	}

	return t
}

func (t *Tracker) MarkRunning(id string) error {
	return t.transition(id, StateRunning, func(s *SourceStatus, now time.Time) {
		s.StartedAt = &now
	})
}

func (t *Tracker) MarkCompleted(id string, count int) error {
	return t.transition(id, StateCompleted, func(s *SourceStatus, now time.Time) {
		s.EventCount = count
		s.FinishedAt = &now
	})
}

func (t *Tracker) MarkFailed(id string, message string) error {
	return t.transition(id, StateFailed, func(s *SourceStatus, now time.Time) {
		s.Message = message
		s.FinishedAt = &now
	})
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

func (t *Tracker) transition(id string, to State, apply func(*SourceStatus, time.Time)) error {
	t.mu.Lock()

	status, ok := t.statuses[id]
	if !ok {
		t.mu.Unlock()
		slog.Warn("Status update for unknown source", "source", id, "state", to)
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}

	if !allowed(status.State, to) {
		from := status.State
		t.mu.Unlock()
		slog.Warn("Rejected status transition", "source", id, "from", from, "to", to)
		return fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, id, from, to)
	}

	status.State = to
	apply(status, time.Now().UTC())

	snapshot := *status
	summary := t.summaryLocked()
	t.mu.Unlock()

	if t.broker != nil {
		t.broker.Publish(SourceUpdatedEvent, Update{Status: &snapshot, Summary: summary})
	}

	return nil
}

// Get returns a copy of the status for id.
func (t *Tracker) Get(id string) (SourceStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status, ok := t.statuses[id]
	if !ok {
		return SourceStatus{}, false
	}
	return *status, true
}

// Snapshot returns copies of all statuses in descriptor order.
func (t *Tracker) Snapshot() []SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]SourceStatus, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.statuses[id])
	}
	return out
}

func (t *Tracker) Progress() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.summaryLocked()
}

func (t *Tracker) summaryLocked() Summary {
	summary := Summary{Total: len(t.order)}

	for _, status := range t.statuses {
		switch status.State {
		case StatePending:
			summary.Pending++
		case StateRunning:
			summary.Running++
		case StateCompleted:
			summary.Completed++
		case StateFailed:
			summary.Failed++
		}
	}

	summary.Done = summary.Completed + summary.Failed
	if summary.Total == 0 {
		summary.Percent = 100
	} else {
		summary.Percent = float64(summary.Done) * 100 / float64(summary.Total)
	}

	return summary
}

// Announce publishes a run-level event carrying the current summary.
func (t *Tracker) Announce(eventType EventType) {
	if t.broker == nil {
		return
	}
	t.broker.Publish(eventType, Update{Summary: t.Progress()})
}
