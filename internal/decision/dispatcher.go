package decision

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"memearena/internal/logger"
	"memearena/internal/pkg/evmaddr"
	"memearena/internal/types"
)

// Executor carries out validated commands.
type Executor interface {
	ExecuteBuy(ctx context.Context, token string, amountBNB float64, agentID string) (types.TradeResult, error)
	ExecuteSell(ctx context.Context, token, agentID string) (types.TradeResult, error)
}

type Status string

const (
	StatusFulfilled Status = "fulfilled"
	StatusRejected  Status = "rejected"
)

// Settlement is the outcome of one submitted command.
type Settlement struct {
	Command Command
	Token   string
	Status  Status
	Result  types.TradeResult
	Err     error
}

// Skipped is a command dropped before submission.
type Skipped struct {
	Command Command
	Reason  string
}

// Tally summarizes one batch. Settlements are in command order.
type Tally struct {
	Attempted   int
	Settlements []Settlement
	Skipped     []Skipped
}

// Fulfilled counts settlements that returned without error.
func (t Tally) Fulfilled() int {
	n := 0
	for _, s := range t.Settlements {
		if s.Status == StatusFulfilled {
			n++
		}
	}
	return n
}

type Dispatcher struct {
	exec Executor
}

func NewDispatcher(exec Executor) *Dispatcher {
	return &Dispatcher{exec: exec}
}

// Dispatch extracts the commands in text and runs them for the cycle's
// agent.
func (d *Dispatcher) Dispatch(ctx context.Context, cycle *Cycle, text string) Tally {
	return d.DispatchCommands(ctx, cycle, ExtractCommands(text))
}

type job struct {
	cmd   Command
	token string
}

// DispatchCommands validates cmds against the cycle index and submits the
// valid ones concurrently. Every submission settles on its own; a failing
// command never stops its siblings.
func (d *Dispatcher) DispatchCommands(ctx context.Context, cycle *Cycle, cmds []Command) Tally {
	var tally Tally
	jobs := make([]job, 0, len(cmds))
	for _, cmd := range cmds {
		token, reason := validate(cycle, cmd)
		if reason != "" {
			logger.Warnf("%s: skipping %s %q: %s", cycle.AgentID, cmd.Kind, cmd.RawIndex, reason)
			tally.Skipped = append(tally.Skipped, Skipped{Command: cmd, Reason: reason})
			continue
		}
		jobs = append(jobs, job{cmd: cmd, token: token})
	}
	tally.Attempted = len(jobs)
	if len(jobs) == 0 {
		return tally
	}

	settled := make([]Settlement, len(jobs))
	var g errgroup.Group
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			settled[i] = d.run(ctx, cycle.AgentID, j)
			return nil
		})
	}
	_ = g.Wait()
	tally.Settlements = settled
	return tally
}

func validate(cycle *Cycle, cmd Command) (string, string) {
	token, ok := cycle.Resolve(cmd.RawIndex)
	if !ok || !evmaddr.Valid(token) {
		return "", "bad index/address"
	}
	if cmd.Kind == types.SideBuy {
		if math.IsNaN(cmd.Amount) || math.IsInf(cmd.Amount, 0) || cmd.Amount <= 0 {
			return "", fmt.Sprintf("invalid amount %q", cmd.RawAmount)
		}
	}
	return token, ""
}

func (d *Dispatcher) run(ctx context.Context, agentID string, j job) (s Settlement) {
	s = Settlement{Command: j.cmd, Token: j.token}
	defer func() {
		if r := recover(); r != nil {
			s.Status = StatusRejected
			s.Err = fmt.Errorf("panic: %v", r)
		}
	}()
	var err error
	switch j.cmd.Kind {
	case types.SideBuy:
		s.Result, err = d.exec.ExecuteBuy(ctx, j.token, j.cmd.Amount, agentID)
	case types.SideSell:
		s.Result, err = d.exec.ExecuteSell(ctx, j.token, agentID)
	default:
		err = fmt.Errorf("unknown command kind %q", j.cmd.Kind)
	}
	if err != nil {
		logger.Errorf("%s: %s %s failed: %v", agentID, j.cmd.Kind, j.token, err)
		s.Status = StatusRejected
		s.Err = err
		return s
	}
	s.Status = StatusFulfilled
	return s
}
