package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls chan struct{}
}

func (c countingRunner) RunCycle(context.Context) ([]Outcome, error) {
	c.calls <- struct{}{}
	return nil, errors.New("feed down")
}

func TestLoopRunsImmediately(t *testing.T) {
	runner := countingRunner{calls: make(chan struct{}, 4)}
	loop, err := NewLoop(runner, "@every 1h", true)
	require.NoError(t, err)
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	select {
	case <-runner.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not run")
	}
}

func TestLoopRejectsBadSchedule(t *testing.T) {
	_, err := NewLoop(countingRunner{}, "sometimes", false)
	assert.Error(t, err)
}
