// Package executor talks to the sandboxed execution service that runs one
// test case of a submission at a time.
package executor

import (
	"context"
	"errors"
	"net"

	"contestjudge/internal/judge/result"
)

var (
	// ErrUnavailable marks failures worth retrying: timeouts, 5xx,
	// refused connections and an open circuit breaker.
	ErrUnavailable = errors.New("execution service unavailable")
	// ErrMalformedResponse means the service answered with something the
	// client cannot interpret. Retrying would produce the same answer.
	ErrMalformedResponse = errors.New("malformed execution response")
	// ErrRejected means the service refused the request itself.
	ErrRejected = errors.New("execution request rejected")
	// ErrUnsupportedLanguage is returned for languages without a runtime mapping.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Request runs one program against one test case.
type Request struct {
	Language       string
	SourceCode     string
	Stdin          string
	ExpectedOutput string
	TimeLimitMs    int64
	MemoryLimitKb  int64
}

// Response is the normalized outcome of a run.
type Response struct {
	Outcome   result.Verdict
	CPUTimeMs int64
	MemoryKb  int64
	Stderr    string
}

// Executor runs programs. Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Execute(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// IsTransient reports whether a failed call may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
