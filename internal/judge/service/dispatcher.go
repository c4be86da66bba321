package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"contestjudge/internal/judge/executor"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultConcurrency  = 4
	defaultCallOverhead = 2 * time.Second
)

// DispatcherConfig bounds how test cases of one submission are executed.
type DispatcherConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	CallOverhead time.Duration `yaml:"callOverhead"`
	Retry        RetryPolicy   `yaml:"retry"`
}

// Job is the immutable input of one judging run.
type Job struct {
	SubmissionID string
	Language     string
	SourceCode   string
	Problem      model.ProblemSnapshot
}

// Dispatcher issues one execution request per test case. Test case 0 runs
// alone as a compile probe; the rest fan out only if it did not fail to compile.
type Dispatcher struct {
	exec   executor.Executor
	cfg    DispatcherConfig
	jitter func(time.Duration) time.Duration
}

// NewDispatcher creates a dispatcher over exec.
func NewDispatcher(exec executor.Executor, cfg DispatcherConfig) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CallOverhead <= 0 {
		cfg.CallOverhead = defaultCallOverhead
	}
	cfg.Retry = cfg.Retry.withDefaults()
	return &Dispatcher{exec: exec, cfg: cfg, jitter: FullJitter}
}

// CallTimeout is the deadline of a single execution call.
func (d *Dispatcher) CallTimeout(problem model.ProblemSnapshot) time.Duration {
	return time.Duration(problem.TimeLimitMs)*time.Millisecond + d.cfg.CallOverhead
}

// Run executes the test cases of job and sends each result to out as it
// completes. out must be able to buffer every result. Run returns nil
// once judging needs no more calls, or ctx.Err() if ctx ended first.
func (d *Dispatcher) Run(ctx context.Context, job Job, out chan<- result.TestCaseResult) error {
	total := len(job.Problem.TestCases)
	if total == 0 {
		return nil
	}

	probe, err := d.runTest(ctx, job, 0)
	if err != nil {
		return err
	}
	if !send(ctx, out, probe) {
		return ctx.Err()
	}
	if probe.Outcome == result.VerdictCE || total == 1 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexes := make(chan int)
	workers := min(d.cfg.Concurrency, total-1)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				r, err := d.runTest(runCtx, job, idx)
				if err != nil {
					return
				}
				if !send(runCtx, out, r) {
					return
				}
				if r.Outcome == result.VerdictCE {
					logger.Warn(ctx, "compile error after probe, stopping remaining test cases", zap.Int("index", idx))
					cancel()
					return
				}
			}
		}()
	}

feed:
	for idx := 1; idx < total; idx++ {
		select {
		case indexes <- idx:
		case <-runCtx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()
	return ctx.Err()
}

func send(ctx context.Context, out chan<- result.TestCaseResult, r result.TestCaseResult) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// runTest executes one test case with per-call timeout and retries.
// It only fails when ctx ends; every other failure becomes an RE result.
func (d *Dispatcher) runTest(ctx context.Context, job Job, idx int) (result.TestCaseResult, error) {
	tc := job.Problem.TestCases[idx]
	req := executor.Request{
		Language:       job.Language,
		SourceCode:     job.SourceCode,
		Stdin:          tc.Input,
		ExpectedOutput: tc.ExpectedOutput,
		TimeLimitMs:    job.Problem.TimeLimitMs,
		MemoryLimitKb:  job.Problem.MemoryLimitKb,
	}
	base := result.TestCaseResult{TestCaseID: tc.ID, Index: idx, Points: tc.Points}
	timeout := d.CallTimeout(job.Problem)
	policy := d.cfg.Retry

	var lastErr error
	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if attempt > 0 {
			judgeRetryTotal.Inc()
			delay := d.jitter(ComputeBackoff(attempt-1, policy.BaseDelay, policy.MaxDelay))
			if err := sleepCtx(ctx, delay); err != nil {
				return result.TestCaseResult{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result.TestCaseResult{}, err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		resp, err := d.exec.Execute(callCtx, req)
		cancel()
		judgeExecutionDuration.Observe(time.Since(start).Seconds())

		if err == nil {
			if !resp.Outcome.IsOutcome() || resp.CPUTimeMs < 0 || resp.MemoryKb < 0 {
				judgeExecutionTotal.WithLabelValues("malformed").Inc()
				return d.runtimeError(ctx, base, fmt.Errorf("%w: outcome %q", executor.ErrMalformedResponse, resp.Outcome)), nil
			}
			judgeExecutionTotal.WithLabelValues("ok").Inc()
			r := base
			r.Outcome = resp.Outcome
			r.CPUTimeMs = resp.CPUTimeMs
			r.MemoryKb = resp.MemoryKb
			return r, nil
		}
		if ctx.Err() != nil {
			return result.TestCaseResult{}, ctx.Err()
		}
		if !executor.IsTransient(err) {
			judgeExecutionTotal.WithLabelValues("failed").Inc()
			return d.runtimeError(ctx, base, err), nil
		}
		judgeExecutionTotal.WithLabelValues("transient").Inc()
		lastErr = err
		logger.Warn(ctx, "execution call failed",
			zap.Int("index", idx), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return d.runtimeError(ctx, base, fmt.Errorf("retries exhausted after %d attempts: %w", policy.Attempts, lastErr)), nil
}

func (d *Dispatcher) runtimeError(ctx context.Context, base result.TestCaseResult, err error) result.TestCaseResult {
	logger.Error(ctx, "test case recorded as runtime error after execution failure",
		zap.Int("index", base.Index), zap.String("test_case_id", base.TestCaseID), zap.Error(err))
	base.Outcome = result.VerdictRE
	base.Detail = err.Error()
	return base
}
