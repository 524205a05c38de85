package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/event-comb/app/source"
)

// Fetcher retrieves raw content for a source target in the given mode.
type Fetcher interface {
	Fetch(ctx context.Context, mode source.Mode, target string) (string, error)
	Supports(mode source.Mode) bool
}

// Executor runs one source to a single Outcome. Implementations must not
// return until the outcome is known and must report failures as outcomes.
type Executor interface {
	Execute(ctx context.Context, src source.Descriptor) Outcome
}

// Recorder receives per-source and merge measurements. It may be nil.
type Recorder interface {
	SourceFinished(mode source.Mode, kind OutcomeKind, elapsed time.Duration)
	EventsMerged(added, discarded int)
}
