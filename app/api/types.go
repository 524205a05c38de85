package api

import (
	"context"

	"github.com/lysyi3m/event-comb/app/database"
	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/runs"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

// SourceCatalog is the read side of the configured sources.
type SourceCatalog interface {
	GetDescriptors() []source.Descriptor
	Select(ids []string) ([]source.Descriptor, error)
	GetConcurrency() int
	GetConfigCount() int
}

var _ SourceCatalog = (*source.ConfigCache)(nil)

// RunArchive is the read side of the optional run archive.
type RunArchive interface {
	GetRun(ctx context.Context, id string) (*database.Run, error)
	ListRuns(ctx context.Context, limit int) ([]database.Run, error)
}

var _ RunArchive = (*database.RunRepository)(nil)

type Handler struct {
	catalog             SourceCatalog
	executor            tasks.Executor
	manager             *runs.Manager
	archive             RunArchive
	extractorConfigured bool
	version             string
}

type SearchSourceRequest struct {
	SourceName string `json:"sourceName" binding:"required"`
	URL        string `json:"url" binding:"required"`
	Mode       string `json:"mode" binding:"required"`
}

// SearchSourceResponse always carries an events array. At most one of
// Warning and Error is set.
type SearchSourceResponse struct {
	Events  []event.Candidate `json:"events"`
	Warning string            `json:"warning,omitempty"`
	Error   string            `json:"error,omitempty"`
	Debug   *tasks.Debug      `json:"debug,omitempty"`
}

type StartRunRequest struct {
	Sources     []string `json:"sources"`
	Concurrency int      `json:"concurrency"`
}

type ArchivedRun struct {
	ID          string                `json:"id"`
	State       string                `json:"state"`
	Concurrency int                   `json:"concurrency"`
	Total       int                   `json:"total"`
	Completed   int                   `json:"completed"`
	Failed      int                   `json:"failed"`
	Pending     int                   `json:"pending"`
	EventCount  int                   `json:"eventCount"`
	CreatedAt   string                `json:"createdAt"`
	FinishedAt  string                `json:"finishedAt,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
	Events      []event.Candidate     `json:"events,omitempty"`
	Statuses    []archivedSourceState `json:"statuses,omitempty"`
}

type archivedSourceState struct {
	ID         string `json:"id"`
	Name       string `json:"displayName"`
	State      string `json:"state"`
	EventCount int    `json:"eventCount"`
	Message    string `json:"message,omitempty"`
}
