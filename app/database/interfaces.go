package database

import (
	"context"
	"time"

	"github.com/lysyi3m/event-comb/app/runs"
)

type RunRepositoryInterface interface {
	SaveRun(ctx context.Context, snapshot runs.Snapshot) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
