package runs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/progress"
	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

const (
	DefaultRetention       = time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

var ErrRunNotFound = errors.New("run not found")

// Archive persists finished runs. It is never read by the pipeline.
type Archive interface {
	SaveRun(ctx context.Context, snapshot Snapshot) error
}

// Lifecycle observes run starts and ends.
type Lifecycle interface {
	RunStarted()
	RunFinished(state string)
}

type ManagerConfig struct {
	Retention time.Duration
	Archive   Archive
	Lifecycle Lifecycle
}

type Manager struct {
	scheduler *tasks.Scheduler
	cache     *gocache.Cache
	retention time.Duration
	archive   Archive
	lifecycle Lifecycle
	wg        sync.WaitGroup
}

func NewManager(scheduler *tasks.Scheduler, config ManagerConfig) *Manager {
	if config.Retention <= 0 {
		config.Retention = DefaultRetention
	}

	return &Manager{
		scheduler: scheduler,
		cache:     gocache.New(config.Retention, defaultCleanupInterval),
		retention: config.Retention,
		archive:   config.Archive,
		lifecycle: config.Lifecycle,
	}
}

// Start launches a run in the background and returns immediately.
func (m *Manager) Start(sources []source.Descriptor, concurrency int) *Run {
	if concurrency < 1 {
		concurrency = tasks.DefaultConcurrency
	}

	broker := progress.NewBroker[progress.Update]()
	ctx, cancel := context.WithCancel(context.Background())

	run := &Run{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Sources:     append([]source.Descriptor(nil), sources...),
		Concurrency: concurrency,
		tracker:     progress.NewTracker(sources, broker),
		merger:      event.NewMerger(),
		broker:      broker,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateRunning,
	}

	// Running entries do not expire.
	m.cache.Set(run.ID, run, gocache.NoExpiration)

	if m.lifecycle != nil {
		m.lifecycle.RunStarted()
	}

	slog.Info("Run started", "run_id", run.ID, "sources", len(sources), "concurrency", concurrency)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(ctx, run)
	}()

	return run
}

func (m *Manager) execute(ctx context.Context, run *Run) {
	state := tasks.RunState{Tracker: run.tracker, Merger: run.merger}

	err := m.scheduler.Run(ctx, run.Sources, run.Concurrency, state)
	run.cancel()

	final := StateCompleted
	if err != nil {
		final = StateStopped
	}
	run.finish(final)
	close(run.done)
	run.broker.Close()

	m.cache.Set(run.ID, run, m.retention)

	if m.lifecycle != nil {
		m.lifecycle.RunFinished(string(final))
	}

	snapshot := run.Snapshot()
	slog.Info("Run finished",
		"run_id", run.ID,
		"state", final,
		"completed", snapshot.Progress.Completed,
		"failed", snapshot.Progress.Failed,
		"pending", snapshot.Progress.Pending,
		"events", len(snapshot.Events),
		"warnings", len(snapshot.Warnings))

	if m.archive != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.archive.SaveRun(saveCtx, snapshot); err != nil {
			slog.Error("Failed to archive run", "run_id", run.ID, "error", err)
		}
	}
}

func (m *Manager) Get(id string) (*Run, error) {
	value, found := m.cache.Get(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	run, ok := value.(*Run)
	if !ok {
		slog.Error("Wrong type in run registry", "run_id", id)
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Stop ends the wait for a run. Sources already executing finish in the
// background; sources not yet started stay pending. Stopping a finished
// run is a no-op.
func (m *Manager) Stop(id string) (*Run, error) {
	run, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	run.cancel()
	<-run.done

	return run, nil
}

// Wait blocks until the run is done or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	run, err := m.Get(id)
	if err != nil {
		return Snapshot{}, err
	}

	select {
	case <-run.done:
		return run.Snapshot(), nil
	case <-ctx.Done():
		return run.Snapshot(), ctx.Err()
	}
}

// List returns snapshots of the retained runs, newest first.
func (m *Manager) List() []Snapshot {
	items := m.cache.Items()

	snapshots := make([]Snapshot, 0, len(items))
	for _, item := range items {
		if run, ok := item.Object.(*Run); ok {
			snapshots = append(snapshots, run.Snapshot())
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots
}

func (m *Manager) ActiveCount() int {
	count := 0
	for _, item := range m.cache.Items() {
		if run, ok := item.Object.(*Run); ok && run.State() == StateRunning {
			count++
		}
	}
	return count
}

// Close stops every running run and waits for their bookkeeping to finish.
func (m *Manager) Close() {
	for _, item := range m.cache.Items() {
		if run, ok := item.Object.(*Run); ok {
			run.cancel()
		}
	}
	m.wg.Wait()
}
