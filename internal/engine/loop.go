package engine

import (
	"context"

	"memearena/internal/logger"
	"memearena/internal/scheduler"
)

// CycleRunner runs one decision cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) ([]Outcome, error)
}

// Loop runs cycles on a schedule. A cycle never starts while the previous
// one is still running.
type Loop struct {
	runner CycleRunner
	sched  *scheduler.CronScheduler
}

func NewLoop(runner CycleRunner, spec string, runImmediately bool) (*Loop, error) {
	sched, err := scheduler.New("cycle", spec)
	if err != nil {
		return nil, err
	}
	sched.RunImmediately = runImmediately
	return &Loop{runner: runner, sched: sched}, nil
}

func (l *Loop) Start(ctx context.Context) error {
	return l.sched.Start(ctx, l.tick)
}

// Stop halts the schedule and waits for a running cycle to end.
func (l *Loop) Stop() {
	l.sched.Stop()
}

func (l *Loop) tick(ctx context.Context) {
	logger.Infof("start tick")
	if _, err := l.runner.RunCycle(ctx); err != nil {
		logger.Errorf("error in tick: %v", err)
	}
}
