package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/progress"
	"github.com/lysyi3m/event-comb/app/source"
)

const DefaultConcurrency = 3

// RunState is the per-run shared state the workers write to.
type RunState struct {
	Tracker *progress.Tracker
	Merger  *event.Merger
}

// Scheduler drains a run's sources through a bounded pool of workers.
// Tasks execute under the scheduler's base context, so a caller that stops
// waiting does not cancel work already in flight.
type Scheduler struct {
	executor Executor
	recorder Recorder
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewScheduler(executor Executor, recorder Recorder) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		executor: executor,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run executes sources with at most concurrency workers. It returns nil once
// every worker has terminated, or ctx.Err() as soon as ctx is done. After an
// early return, workers take no new sources but finish the ones they hold.
func (s *Scheduler) Run(ctx context.Context, sources []source.Descriptor, concurrency int, state RunState) error {
	if concurrency < 1 {
		concurrency = 1
	}
	workerCount := min(concurrency, len(sources))

	queue := make(chan source.Descriptor, len(sources))
	for _, src := range sources {
		queue <- src
	}
	close(queue)

	slog.Debug("Run started", "sources", len(sources), "workers", workerCount)

	var runWG sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		runWG.Add(1)
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			defer runWG.Done()
			s.worker(ctx, id, queue, state)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		runWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		state.Tracker.Announce(progress.RunCompletedEvent)
		slog.Debug("Run completed", "sources", len(sources))
		return nil
	case <-ctx.Done():
		state.Tracker.Announce(progress.RunStoppedEvent)
		slog.Info("Run stopped early", "progress", state.Tracker.Progress().Done, "total", len(sources))
		return ctx.Err()
	}
}

// Stop cancels in-flight tasks and waits for every worker to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context, id int, queue <-chan source.Descriptor, state RunState) {
	for {
		if ctx.Err() != nil || s.ctx.Err() != nil {
			return
		}

		select {
		case src, ok := <-queue:
			if !ok {
				return
			}
			s.executeSource(id, src, state)

		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeSource(workerID int, src source.Descriptor, state RunState) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Worker recovered from panic",
				"worker_id", workerID,
				"source", src.ID,
				"panic", r,
				"stack", string(debug.Stack()))

			_ = state.Tracker.MarkFailed(src.ID, MsgUnexpectedError)
			state.Merger.AddWarning(warning(src, MsgUnexpectedError))
			s.recordSource(src, OutcomeHardError, time.Since(start))
		}
	}()

	if err := state.Tracker.MarkRunning(src.ID); err != nil {
		return
	}

	outcome := s.executor.Execute(s.ctx, src)

	switch outcome.Kind {
	case OutcomeSuccess:
		added := state.Merger.Merge(outcome.Events)
		_ = state.Tracker.MarkCompleted(src.ID, len(outcome.Events))
		if s.recorder != nil {
			s.recorder.EventsMerged(added, len(outcome.Events)-added)
		}
	default:
		state.Merger.AddWarning(warning(src, outcome.Message))
		_ = state.Tracker.MarkFailed(src.ID, outcome.Message)
	}

	s.recordSource(src, outcome.Kind, time.Since(start))

	slog.Info("Task completed",
		"worker_id", workerID,
		"source", src.ID,
		"outcome", outcome.Kind,
		"events", len(outcome.Events),
		"message", outcome.Message,
		"duration", time.Since(start))
}

func (s *Scheduler) recordSource(src source.Descriptor, kind OutcomeKind, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.SourceFinished(src.Mode, kind, elapsed)
	}
}

func warning(src source.Descriptor, message string) string {
	name := src.DisplayName
	if name == "" {
		name = src.ID
	}
	return fmt.Sprintf("%s: %s", name, message)
}
