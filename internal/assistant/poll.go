package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultPollInterval    = time.Second
	DefaultMaxPollAttempts = 30
)

// ErrRunTimeout is wrapped when the run is still going after the last poll.
var ErrRunTimeout = errors.New("run did not finish in time")

// PollPolicy bounds the run status loop. Sleep is injectable so tests never
// wait on a real clock.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       func(ctx context.Context, d time.Duration) error
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxPollAttempts,
		Sleep:       sleepContext,
	}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxPollAttempts
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type runState int

const (
	runPending runState = iota
	runCompleted
	runFailed
	runTimedOut
	runErrored
)

type pollResult struct {
	state    runState
	run      openai.Run
	attempts int
	err      error
}

// classify maps a run status onto the loop states. Only completed and failed
// end the loop; every other status keeps polling.
func classify(status openai.RunStatus) runState {
	switch status {
	case openai.RunStatusCompleted:
		return runCompleted
	case openai.RunStatusFailed:
		return runFailed
	}
	return runPending
}

// waitForRun polls until the run completes or fails, the attempt budget is
// spent, or a status request errors.
func (c *Client) waitForRun(ctx context.Context, threadID string, run openai.Run) pollResult {
	res := pollResult{state: classify(run.Status), run: run}

	for res.state == runPending {
		if res.attempts >= c.policy.MaxAttempts {
			res.state = runTimedOut
			res.err = fmt.Errorf("%w: %d attempts, last status %s", ErrRunTimeout, res.attempts, res.run.Status)
			return res
		}

		if err := c.policy.Sleep(ctx, c.policy.Interval); err != nil {
			res.state = runErrored
			res.err = fmt.Errorf("wait for run: %w", err)
			return res
		}

		res.attempts++
		current, err := c.api.RetrieveRun(ctx, threadID, res.run.ID)
		if err != nil {
			res.state = runErrored
			res.err = fmt.Errorf("retrieve run: %w", err)
			return res
		}
		res.run = current
		res.state = classify(current.Status)
	}

	if res.state == runFailed {
		res.err = fmt.Errorf("run ended with status %s", res.run.Status)
		if res.run.LastError != nil && res.run.LastError.Message != "" {
			res.err = fmt.Errorf("run ended with status %s: %s", res.run.Status, res.run.LastError.Message)
		}
	}
	return res
}
