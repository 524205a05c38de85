package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/progress"
	"github.com/lysyi3m/event-comb/app/source"
)

// scriptedExecutor returns a fixed outcome per source id and tracks how many
// executions overlap.
type scriptedExecutor struct {
	outcomes map[string]Outcome
	panics   map[string]bool
	delay    time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
	executed  atomic.Int32
}

func (e *scriptedExecutor) Execute(_ context.Context, src source.Descriptor) Outcome {
	e.executed.Add(1)
	current := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		seen := e.maxActive.Load()
		if current <= seen || e.maxActive.CompareAndSwap(seen, current) {
			break
		}
	}

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	if e.panics[src.ID] {
		panic("extractor exploded")
	}
	if outcome, ok := e.outcomes[src.ID]; ok {
		return outcome
	}
	return Success(nil)
}

type countingRecorder struct {
	mu       sync.Mutex
	finished map[OutcomeKind]int
	added    int
}

func (r *countingRecorder) SourceFinished(_ source.Mode, kind OutcomeKind, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[OutcomeKind]int{}
	}
	r.finished[kind]++
}

func (r *countingRecorder) EventsMerged(added, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added += added
}

func makeSources(n int) []source.Descriptor {
	sources := make([]source.Descriptor, n)
	for i := range sources {
		sources[i] = source.Descriptor{
			ID:          fmt.Sprintf("s%d", i),
			DisplayName: fmt.Sprintf("Source %d", i),
			Target:      fmt.Sprintf("query %d", i),
			Mode:        source.ModeQuery,
		}
	}
	return sources
}

func newRunState(sources []source.Descriptor, broker *progress.Broker[progress.Update]) RunState {
	return RunState{
		Tracker: progress.NewTracker(sources, broker),
		Merger:  event.NewMerger(),
	}
}

func statesByID(tracker *progress.Tracker) map[string]progress.State {
	out := map[string]progress.State{}
	for _, status := range tracker.Snapshot() {
		out[status.ID] = status.State
	}
	return out
}

func TestSchedulerTwoSources(t *testing.T) {
	sources := []source.Descriptor{
		{ID: "a", DisplayName: "A", Target: "q", Mode: source.ModeQuery},
		{ID: "b", DisplayName: "B", Target: "q", Mode: source.ModeQuery},
	}
	executor := &scriptedExecutor{outcomes: map[string]Outcome{
		"a": SoftWarning(MsgFetchTimeout),
		"b": Success([]event.Candidate{{Title: "Future of Work Summit"}, {Title: "People Analytics Forum"}}),
	}}

	scheduler := NewScheduler(executor, nil)
	defer scheduler.Stop()

	state := newRunState(sources, nil)
	err := scheduler.Run(context.Background(), sources, 2, state)
	require.NoError(t, err)

	a, _ := state.Tracker.Get("a")
	b, _ := state.Tracker.Get("b")
	assert.Equal(t, progress.StateFailed, a.State)
	assert.Equal(t, MsgFetchTimeout, a.Message)
	assert.Equal(t, progress.StateCompleted, b.State)
	assert.Equal(t, 2, b.EventCount)

	result := state.Merger.Result()
	assert.Len(t, result.Events, 2)
	assert.Equal(t, []string{"A: fetch timeout"}, result.Warnings)
}

func TestSchedulerBoundsConcurrency(t *testing.T) {
	sources := makeSources(9)
	executor := &scriptedExecutor{delay: 20 * time.Millisecond}

	scheduler := NewScheduler(executor, nil)
	defer scheduler.Stop()

	state := newRunState(sources, nil)
	require.NoError(t, scheduler.Run(context.Background(), sources, 3, state))

	assert.Equal(t, int32(9), executor.executed.Load())
	assert.LessOrEqual(t, executor.maxActive.Load(), int32(3))
	assert.Equal(t, int32(3), executor.maxActive.Load())

	summary := state.Tracker.Progress()
	assert.Equal(t, 9, summary.Completed)
	assert.Equal(t, 0, summary.Pending)
	assert.Equal(t, 0, summary.Running)
}

func TestSchedulerClampsConcurrency(t *testing.T) {
	sources := makeSources(4)
	executor := &scriptedExecutor{delay: 5 * time.Millisecond}

	scheduler := NewScheduler(executor, nil)
	defer scheduler.Stop()

	state := newRunState(sources, nil)
	require.NoError(t, scheduler.Run(context.Background(), sources, 0, state))

	assert.Equal(t, int32(1), executor.maxActive.Load())
	assert.Equal(t, 4, state.Tracker.Progress().Completed)
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	sources := makeSources(9)
	executor := &scriptedExecutor{panics: map[string]bool{"s4": true}}
	recorder := &countingRecorder{}

	scheduler := NewScheduler(executor, recorder)
	defer scheduler.Stop()

	state := newRunState(sources, nil)
	require.NoError(t, scheduler.Run(context.Background(), sources, 3, state))

	summary := state.Tracker.Progress()
	assert.Equal(t, 8, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	failed, _ := state.Tracker.Get("s4")
	assert.Equal(t, progress.StateFailed, failed.State)
	assert.Equal(t, MsgUnexpectedError, failed.Message)
	assert.Equal(t, []string{"Source 4: unexpected error"}, state.Merger.Result().Warnings)
	assert.Equal(t, 8, recorder.finished[OutcomeSuccess])
	assert.Equal(t, 1, recorder.finished[OutcomeHardError])
}

func TestSchedulerEmptyRun(t *testing.T) {
	broker := progress.NewBroker[progress.Update]()
	defer broker.Close()
	events := broker.Subscribe(context.Background())

	scheduler := NewScheduler(&scriptedExecutor{}, nil)
	defer scheduler.Stop()

	state := newRunState(nil, broker)
	require.NoError(t, scheduler.Run(context.Background(), nil, 3, state))

	select {
	case ev := <-events:
		assert.Equal(t, progress.RunCompletedEvent, ev.Type)
	case <-time.After(time.Second):
		require.FailNow(t, "no run_completed event")
	}
}

func TestSchedulerPublishesProgress(t *testing.T) {
	sources := makeSources(3)
	broker := progress.NewBroker[progress.Update]()
	defer broker.Close()
	events := broker.Subscribe(context.Background())

	scheduler := NewScheduler(&scriptedExecutor{}, nil)
	defer scheduler.Stop()

	state := newRunState(sources, broker)
	require.NoError(t, scheduler.Run(context.Background(), sources, 2, state))

	counts := map[progress.EventType]int{}
	timeout := time.After(time.Second)
	for counts[progress.RunCompletedEvent] == 0 {
		select {
		case ev := <-events:
			counts[ev.Type]++
		case <-timeout:
			require.FailNow(t, "missing events", "%v", counts)
		}
	}

	assert.Equal(t, 6, counts[progress.SourceUpdatedEvent])
}

// blockingExecutor holds every execution until release is closed.
type blockingExecutor struct {
	started chan string
	release chan struct{}
}

func (e *blockingExecutor) Execute(_ context.Context, src source.Descriptor) Outcome {
	e.started <- src.ID
	<-e.release
	return Success([]event.Candidate{{Title: "Event from " + src.ID}})
}

func TestSchedulerEarlyStop(t *testing.T) {
	sources := makeSources(5)
	executor := &blockingExecutor{
		started: make(chan string, len(sources)),
		release: make(chan struct{}),
	}

	scheduler := NewScheduler(executor, nil)
	defer scheduler.Stop()

	state := newRunState(sources, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- scheduler.Run(ctx, sources, 2, state)
	}()

	inFlight := []string{<-executor.started, <-executor.started}
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		require.FailNow(t, "Run did not return after cancellation")
	}

	for _, id := range inFlight {
		status, _ := state.Tracker.Get(id)
		assert.Equal(t, progress.StateRunning, status.State)
	}

	close(executor.release)

	require.Eventually(t, func() bool {
		return state.Tracker.Progress().Completed == 2
	}, time.Second, 5*time.Millisecond)

	summary := state.Tracker.Progress()
	assert.Equal(t, 3, summary.Pending)
	assert.Equal(t, 0, summary.Running)
	assert.Len(t, state.Merger.Result().Events, 2)
}

func TestSchedulerConcurrencyInvariance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "sources")
		sources := makeSources(n)

		outcomes := map[string]Outcome{}
		expectedStates := map[string]progress.State{}
		var expectedTitles []string

		for _, src := range sources {
			switch rapid.IntRange(0, 2).Draw(t, "kind_"+src.ID) {
			case 0:
				count := rapid.IntRange(0, 3).Draw(t, "events_"+src.ID)
				events := make([]event.Candidate, count)
				for i := range events {
					events[i] = event.Candidate{Title: fmt.Sprintf("%s-%d unique event title", src.ID, i)}
					expectedTitles = append(expectedTitles, events[i].Title)
				}
				outcomes[src.ID] = Success(events)
				expectedStates[src.ID] = progress.StateCompleted
			case 1:
				outcomes[src.ID] = SoftWarning(MsgFetchFailure)
				expectedStates[src.ID] = progress.StateFailed
			default:
				outcomes[src.ID] = HardError(MsgExtractorMissing)
				expectedStates[src.ID] = progress.StateFailed
			}
		}

		concurrency := rapid.IntRange(1, n+2).Draw(t, "concurrency")

		scheduler := NewScheduler(&scriptedExecutor{outcomes: outcomes}, nil)
		defer scheduler.Stop()

		state := newRunState(sources, nil)
		if err := scheduler.Run(context.Background(), sources, concurrency, state); err != nil {
			t.Fatalf("Run returned %v", err)
		}

		gotStates := statesByID(state.Tracker)
		for id, want := range expectedStates {
			if gotStates[id] != want {
				t.Fatalf("source %s: state %s, want %s (concurrency %d)", id, gotStates[id], want, concurrency)
			}
		}

		var gotTitles []string
		for _, e := range state.Merger.Result().Events {
			gotTitles = append(gotTitles, e.Title)
		}
		sort.Strings(gotTitles)
		sort.Strings(expectedTitles)
		if fmt.Sprint(gotTitles) != fmt.Sprint(expectedTitles) {
			t.Fatalf("events %v, want %v", gotTitles, expectedTitles)
		}
	})
}

func TestSchedulerStopCancelsInFlight(t *testing.T) {
	sources := makeSources(1)
	var sawCancel atomic.Bool
	executor := executorFunc(func(ctx context.Context, _ source.Descriptor) Outcome {
		<-ctx.Done()
		sawCancel.Store(true)
		return SoftWarning(MsgFetchFailure)
	})

	scheduler := NewScheduler(executor, nil)
	state := newRunState(sources, nil)

	done := make(chan struct{})
	go func() {
		_ = scheduler.Run(context.Background(), sources, 1, state)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return state.Tracker.Progress().Running == 1
	}, time.Second, 5*time.Millisecond)

	scheduler.Stop()
	<-done

	assert.True(t, sawCancel.Load())
	status, _ := state.Tracker.Get("s0")
	assert.Equal(t, progress.StateFailed, status.State)
}

type executorFunc func(ctx context.Context, src source.Descriptor) Outcome

func (f executorFunc) Execute(ctx context.Context, src source.Descriptor) Outcome {
	return f(ctx, src)
}
