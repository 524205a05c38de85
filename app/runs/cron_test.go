package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/event-comb/app/source"
	"github.com/lysyi3m/event-comb/app/tasks"
)

type staticSources []source.Descriptor

func (s staticSources) GetDescriptors() []source.Descriptor { return s }
func (s staticSources) GetConcurrency() int                 { return 2 }

func TestNewCronRejectsInvalidSchedule(t *testing.T) {
	manager := newManager(t, succeeding(), ManagerConfig{})

	_, err := NewCron(manager, staticSources(sources(1)), "every tuesday")
	assert.Error(t, err)

	c, err := NewCron(manager, staticSources(sources(1)), "@every 1h")
	require.NoError(t, err)
	c.Start()
	<-c.Stop().Done()
}

func TestCronTriggerStartsRun(t *testing.T) {
	manager := newManager(t, succeeding(), ManagerConfig{})
	c, err := NewCron(manager, staticSources(sources(3)), "0 * * * *")
	require.NoError(t, err)

	run := c.trigger()
	require.NotNil(t, run)
	assert.Equal(t, 2, run.Concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snapshot, err := manager.Wait(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snapshot.State)
	assert.Len(t, snapshot.Events, 3)
}

func TestCronTriggerSkipsWhileActive(t *testing.T) {
	release := make(chan struct{})
	blocking := executorFunc(func(ctx context.Context, src source.Descriptor) tasks.Outcome {
		<-release
		return tasks.Success(nil)
	})
	manager := newManager(t, blocking, ManagerConfig{})
	defer close(release)

	c, err := NewCron(manager, staticSources(sources(2)), "0 * * * *")
	require.NoError(t, err)

	require.NotNil(t, c.trigger())
	assert.Nil(t, c.trigger())
	assert.Len(t, manager.List(), 1)
}

func TestCronTriggerSkipsWithoutSources(t *testing.T) {
	manager := newManager(t, succeeding(), ManagerConfig{})
	c, err := NewCron(manager, staticSources(nil), "0 * * * *")
	require.NoError(t, err)

	assert.Nil(t, c.trigger())
	assert.Empty(t, manager.List())
}
