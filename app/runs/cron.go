package runs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/event-comb/app/source"
)

// SourceLister supplies the sources for scheduled runs.
type SourceLister interface {
	GetDescriptors() []source.Descriptor
	GetConcurrency() int
}

// Cron starts a run over every configured source on a cron schedule. A tick
// is skipped while another run is still active.
type Cron struct {
	cron    *cron.Cron
	manager *Manager
	sources SourceLister
}

func NewCron(manager *Manager, sources SourceLister, spec string) (*Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	scheduled := &Cron{cron: c, manager: manager, sources: sources}

	if _, err := c.AddFunc(spec, func() { scheduled.trigger() }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	return scheduled, nil
}

func (c *Cron) Start() {
	c.cron.Start()
	slog.Info("Run schedule started", "next", c.cron.Entries()[0].Next)
}

// Stop halts the schedule. The returned context is done once a tick in
// progress has returned; runs it started keep going.
func (c *Cron) Stop() context.Context {
	return c.cron.Stop()
}

func (c *Cron) trigger() *Run {
	if active := c.manager.ActiveCount(); active > 0 {
		slog.Warn("Skipping scheduled run", "active_runs", active)
		return nil
	}

	descriptors := c.sources.GetDescriptors()
	if len(descriptors) == 0 {
		slog.Warn("Skipping scheduled run", "reason", "no sources configured")
		return nil
	}

	run := c.manager.Start(descriptors, c.sources.GetConcurrency())
	slog.Info("Scheduled run triggered", "run_id", run.ID)
	return run
}
