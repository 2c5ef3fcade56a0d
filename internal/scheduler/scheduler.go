// Package scheduler runs a task on a cron schedule, one run at a time.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"memearena/internal/logger"
)

// CronScheduler fires a task on a cron spec such as "@every 30s". A tick
// that arrives while the previous run is still going is skipped.
type CronScheduler struct {
	Name           string
	RunImmediately bool

	spec     string
	cron     *cron.Cron
	inFlight atomic.Bool
	skipped  atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(name, spec string) (*CronScheduler, error) {
	spec = strings.TrimSpace(spec)
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("scheduler %s: invalid spec %q: %w", name, spec, err)
	}
	return &CronScheduler{Name: name, spec: spec}, nil
}

// Start schedules task until ctx is done or Stop is called.
func (s *CronScheduler) Start(ctx context.Context, task func(context.Context)) error {
	if task == nil {
		return fmt.Errorf("scheduler %s: task is nil", s.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler %s: already started", s.Name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{name: s.Name})))
	if _, err := c.AddFunc(s.spec, func() { s.fire(runCtx, task) }); err != nil {
		cancel()
		return fmt.Errorf("scheduler %s: %w", s.Name, err)
	}
	s.cron, s.cancel = c, cancel

	logger.Infof("scheduler[%s]: started spec=%q run_immediately=%v at=%s",
		s.Name, s.spec, s.RunImmediately, time.Now().UTC().Format(time.RFC3339))
	if s.RunImmediately {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(runCtx, task)
		}()
	}
	c.Start()
	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts scheduling and waits for a run in progress to finish.
func (s *CronScheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Skipped counts ticks dropped because a run was still in flight.
func (s *CronScheduler) Skipped() int64 {
	return s.skipped.Load()
}

func (s *CronScheduler) fire(ctx context.Context, task func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		logger.Warnf("scheduler[%s]: previous run still in flight, skipping tick", s.Name)
		return
	}
	defer s.inFlight.Store(false)
	start := time.Now()
	task(ctx)
	logger.Debugf("scheduler[%s]: run finished in %s", s.Name, time.Since(start).Truncate(time.Millisecond))
}

type cronLogger struct {
	name string
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debugf("scheduler[%s]: %s %v", l.name, msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Errorf("scheduler[%s]: %s: %v %v", l.name, msg, err, keysAndValues)
}
