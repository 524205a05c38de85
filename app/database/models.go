package database

import (
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/progress"
)

// Run is an archived run record.
type Run struct {
	ID          string
	State       string
	Concurrency int
	Total       int
	Completed   int
	Failed      int
	Pending     int
	Warnings    []string
	Statuses    []progress.SourceStatus
	CreatedAt   time.Time
	FinishedAt  *time.Time
	EventCount  int
	Events      []event.Candidate
}
