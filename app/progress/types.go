// Package progress tracks per-source state during a run and broadcasts
// changes to subscribers.
package progress

import (
	"time"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SourceStatus is the observable state of one source within a run.
type SourceStatus struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	State       State      `json:"state"`
	EventCount  int        `json:"eventCount"`
	Message     string     `json:"message,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type Summary struct {
	Total     int     `json:"total"`
	Done      int     `json:"done"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Running   int     `json:"running"`
	Pending   int     `json:"pending"`
	Percent   float64 `json:"percent"`
}

// Update is the payload published for every status change and for the end of
// a run. Status is nil for run-level events.
type Update struct {
	Status  *SourceStatus `json:"status,omitempty"`
	Summary Summary       `json:"summary"`
}
