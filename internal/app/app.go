// Package app wires configuration into a running arena: clients, stores,
// the executor, agents and the cycle loop.
package app

import (
	"context"
	"errors"
	"fmt"

	"memearena/internal/config"
	"memearena/internal/engine"
	"memearena/internal/logger"
)

type closer interface {
	Close() error
}

// App owns every long-lived component of the arena.
type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	loop    *engine.Loop
	closers []closer
	Summary *StartupSummary
}

// NewApp builds the application from cfg without starting it.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return NewBuilder(cfg).Build(ctx)
}

// Run starts the cycle loop and blocks until ctx is done, then waits for the
// running cycle to finish.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.loop == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if err := a.loop.Start(ctx); err != nil {
		return fmt.Errorf("start loop: %w", err)
	}
	<-ctx.Done()
	logger.Infof("shutting down")
	a.loop.Stop()
	return nil
}

// RunOnce runs a single cycle outside the schedule.
func (a *App) RunOnce(ctx context.Context) ([]engine.Outcome, error) {
	if a == nil || a.engine == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return a.engine.RunCycle(ctx)
}

// Close releases stores and connections in reverse build order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
