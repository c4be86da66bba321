package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contestjudge/internal/judge/executor"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/result"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/contextkey"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultWatchdogFloor  = 10 * time.Second
	defaultWatchdogFactor = 2
	defaultAcquireTimeout = 2 * time.Second
	defaultStatusTimeout  = 2 * time.Second
	defaultHandlerTimeout = 5 * time.Second
)

var (
	// ErrNotActive is returned when cancelling a submission this instance is not judging.
	ErrNotActive = errors.New("submission is not being judged")

	errWatchdogExpired = errors.New("judging watchdog expired")
	errCancelled       = errors.New("judging cancelled")
	errShutdown        = errors.New("judge service shutting down")
)

// TerminalHandler is notified exactly once per submission when it reaches
// Judged or Failed. Handlers run in registration order.
type TerminalHandler interface {
	HandleTerminal(ctx context.Context, sub model.Submission) error
}

// TerminalHandlerFunc adapts a function to TerminalHandler.
type TerminalHandlerFunc func(ctx context.Context, sub model.Submission) error

func (f TerminalHandlerFunc) HandleTerminal(ctx context.Context, sub model.Submission) error {
	return f(ctx, sub)
}

// StatusStore keeps the live judging status readable from any instance.
type StatusStore interface {
	Save(ctx context.Context, sub model.Submission) error
}

// Config holds service dependencies and settings.
type Config struct {
	Executor    executor.Executor
	StatusStore StatusStore
	Handlers    []TerminalHandler
	Dispatcher  DispatcherConfig

	WatchdogFloor  time.Duration
	WatchdogFactor int
	// MaxActive bounds concurrently judged submissions; 0 means unbounded.
	MaxActive      int
	AcquireTimeout time.Duration
	StatusTimeout  time.Duration
	HandlerTimeout time.Duration
	Now            func() time.Time
}

type activeJudge struct {
	tracker *Tracker
	cancel  context.CancelCauseFunc
}

// JudgeService runs one goroutine per submission that owns its Tracker.
type JudgeService struct {
	dispatcher     *Dispatcher
	statusStore    StatusStore
	handlers       []TerminalHandler
	watchdogFloor  time.Duration
	watchdogFactor int
	acquireTimeout time.Duration
	statusTimeout  time.Duration
	handlerTimeout time.Duration
	now            func() time.Time
	sem            chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelCauseFunc

	mu     sync.RWMutex
	active map[string]*activeJudge
	wg     sync.WaitGroup
}

// NewJudgeService creates a new judge service.
func NewJudgeService(cfg Config) (*JudgeService, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.WatchdogFloor <= 0 {
		cfg.WatchdogFloor = defaultWatchdogFloor
	}
	if cfg.WatchdogFactor <= 0 {
		cfg.WatchdogFactor = defaultWatchdogFactor
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var sem chan struct{}
	if cfg.MaxActive > 0 {
		sem = make(chan struct{}, cfg.MaxActive)
	}
	rootCtx, rootCancel := context.WithCancelCause(context.Background())
	return &JudgeService{
		dispatcher:     NewDispatcher(cfg.Executor, cfg.Dispatcher),
		statusStore:    cfg.StatusStore,
		handlers:       cfg.Handlers,
		watchdogFloor:  cfg.WatchdogFloor,
		watchdogFactor: cfg.WatchdogFactor,
		acquireTimeout: cfg.AcquireTimeout,
		statusTimeout:  cfg.StatusTimeout,
		handlerTimeout: cfg.HandlerTimeout,
		now:            cfg.Now,
		sem:            sem,
		rootCtx:        rootCtx,
		rootCancel:     rootCancel,
		active:         make(map[string]*activeJudge),
	}, nil
}

// AddHandler registers a terminal handler. Call before the first Start.
func (s *JudgeService) AddHandler(h TerminalHandler) {
	s.handlers = append(s.handlers, h)
}

// WatchdogTimeout is max(floor, factor × timeLimit × testCount).
func (s *JudgeService) WatchdogTimeout(problem model.ProblemSnapshot) time.Duration {
	budget := time.Duration(s.watchdogFactor) * time.Duration(problem.TimeLimitMs) * time.Millisecond * time.Duration(len(problem.TestCases))
	return max(s.watchdogFloor, budget)
}

// Start dispatches sub for judging against problem and returns immediately.
// Judging outlives ctx; only Cancel, the watchdog or Shutdown stop it.
func (s *JudgeService) Start(ctx context.Context, sub model.Submission, problem model.ProblemSnapshot) error {
	if sub.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if len(problem.TestCases) == 0 {
		return appErr.New(appErr.ProblemNotSubmittable).WithMessage("problem has no test cases")
	}
	if err := s.rootCtx.Err(); err != nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge service is shutting down")
	}
	if err := s.acquireSlot(ctx); err != nil {
		return err
	}

	tracker := NewTracker(sub, s.now)
	if err := tracker.Dispatch(problem); err != nil {
		s.releaseSlot()
		return appErr.Wrapf(err, appErr.InternalServerError, "dispatch submission failed")
	}

	jctx := context.WithValue(s.rootCtx, contextkey.SubmissionID, sub.ID)
	if traceID := ctx.Value(contextkey.TraceID); traceID != nil {
		jctx = context.WithValue(jctx, contextkey.TraceID, traceID)
	}
	jctx, cancel := context.WithCancelCause(jctx)
	aj := &activeJudge{tracker: tracker, cancel: cancel}

	s.mu.Lock()
	if _, exists := s.active[sub.ID]; exists {
		s.mu.Unlock()
		cancel(nil)
		s.releaseSlot()
		return appErr.New(appErr.RecordAlreadyExists).WithMessage("submission is already being judged")
	}
	s.active[sub.ID] = aj
	s.mu.Unlock()

	judgeActive.Inc()
	s.wg.Add(1)
	go s.judge(jctx, aj, Job{
		SubmissionID: sub.ID,
		Language:     sub.Language,
		SourceCode:   sub.SourceCode,
		Problem:      problem,
	})
	return nil
}

// Get returns the live view of a submission being judged by this instance.
func (s *JudgeService) Get(submissionID string) (model.Submission, bool) {
	s.mu.RLock()
	aj, ok := s.active[submissionID]
	s.mu.RUnlock()
	if !ok {
		return model.Submission{}, false
	}
	return aj.tracker.Snapshot(), true
}

// Cancel aborts in-flight judging; the submission ends Failed/CANCELLED.
func (s *JudgeService) Cancel(submissionID string) error {
	s.mu.RLock()
	aj, ok := s.active[submissionID]
	s.mu.RUnlock()
	if !ok || aj.tracker.State().IsTerminal() {
		return ErrNotActive
	}
	aj.cancel(errCancelled)
	return nil
}

// ActiveCount returns the number of submissions currently judged.
func (s *JudgeService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Shutdown fails every in-flight submission with SE and waits for their
// terminal handlers, or for ctx to end.
func (s *JudgeService) Shutdown(ctx context.Context) error {
	s.rootCancel(errShutdown)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JudgeService) judge(ctx context.Context, aj *activeJudge, job Job) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, job.SubmissionID)
		s.mu.Unlock()
		judgeActive.Dec()
		s.releaseSlot()
	}()

	started := s.now()
	watchdog := s.WatchdogTimeout(job.Problem)
	ctx, stopWatchdog := context.WithTimeoutCause(ctx, watchdog, errWatchdogExpired)
	defer stopWatchdog()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	results := make(chan result.TestCaseResult, len(job.Problem.TestCases))
	dispatchDone := make(chan error, 1)
	go func() {
		dispatchDone <- s.dispatcher.Run(runCtx, job, results)
	}()
	logger.Info(ctx, "judging started",
		zap.Int("test_count", len(job.Problem.TestCases)), zap.Duration("watchdog", watchdog))
	s.saveStatus(ctx, aj.tracker.Snapshot())

	terminal := false
	for !terminal {
		select {
		case r := <-results:
			terminal = s.apply(ctx, aj.tracker, r)
		case err := <-dispatchDone:
			dispatchDone = nil
			for !terminal && len(results) > 0 {
				terminal = s.apply(ctx, aj.tracker, <-results)
			}
			if !terminal && ctx.Err() == nil {
				aj.tracker.Fail(result.VerdictSE, fmt.Sprintf("dispatcher stopped before judging completed: %v", err))
				terminal = true
			}
		case <-ctx.Done():
			s.abort(ctx, aj.tracker, watchdog)
			terminal = true
		}
	}
	stopRun()

	final := aj.tracker.Snapshot()
	judgeSubmissionTotal.WithLabelValues(string(final.State), string(final.Verdict)).Inc()
	judgeSubmissionDuration.Observe(s.now().Sub(started).Seconds())
	logger.Info(ctx, "judging finished",
		zap.String("state", string(final.State)),
		zap.String("verdict", string(final.Verdict)),
		zap.Int64("score", final.Score),
		zap.Int64("max_score", final.MaxScore))
	s.notifyTerminal(ctx, final)

	if dispatchDone != nil {
		<-dispatchDone
	}
}

// apply records r and reports whether the submission became terminal.
func (s *JudgeService) apply(ctx context.Context, tracker *Tracker, r result.TestCaseResult) bool {
	done, err := tracker.Record(r)
	if err != nil {
		logger.Error(ctx, "record test case result failed", zap.Int("index", r.Index), zap.Error(err))
		tracker.Fail(result.VerdictSE, fmt.Sprintf("record result %d: %v", r.Index, err))
		return true
	}
	if !done {
		s.saveStatus(ctx, tracker.Snapshot())
	}
	return done
}

func (s *JudgeService) abort(ctx context.Context, tracker *Tracker, watchdog time.Duration) {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errCancelled):
		tracker.Fail(result.VerdictCancelled, "cancelled by request")
	case errors.Is(cause, errWatchdogExpired):
		judgeWatchdogTotal.Inc()
		logger.Error(ctx, "judging watchdog expired", zap.Duration("watchdog", watchdog))
		tracker.Fail(result.VerdictSE, errWatchdogExpired.Error())
	default:
		logger.Error(ctx, "judging aborted", zap.Error(cause))
		tracker.Fail(result.VerdictSE, fmt.Sprintf("judging aborted: %v", cause))
	}
}

func (s *JudgeService) acquireSlot(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	timer := time.NewTimer(s.acquireTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("judge pool is full")
	}
}

func (s *JudgeService) releaseSlot() {
	if s.sem == nil {
		return
	}
	select {
	case <-s.sem:
	default:
	}
}
