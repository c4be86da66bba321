package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "contestjudge/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{ContestNotRunning, "Contest is not running"},
		{SubmissionNotFound, "Submission not found"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		wantStatus int
	}{
		{Success, 200},
		{ValidationFailed, 400},
		{TokenInvalid, 401},
		{Forbidden, 403},
		{SubmissionNotFound, 404},
		{ContestNotRunning, 409},
		{SubmitTooFrequently, 429},
		{InternalServerError, 500},
		{ExecutionServiceUnavailable, 503},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.wantStatus {
				t.Errorf("HTTPStatus() = %v, want %v", got, tt.wantStatus)
			}
		})
	}
}

func TestWrapHidesForeignMessage(t *testing.T) {
	originalErr := errors.New("dial tcp 10.0.0.3:2358: connection refused")
	err := Wrap(originalErr, ExecutionServiceUnavailable)

	if err.Error() != ExecutionServiceUnavailable.Message() {
		t.Fatalf("Error() = %q, want default message", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Fatalf("expected wrapped error to unwrap to original")
	}
}

func TestWrapKeepsExistingError(t *testing.T) {
	base := ValidationError("source_code", "required")
	wrapped := fmt.Errorf("create submission: %w", base)

	err := Wrap(wrapped, InvalidParams)
	if err != base {
		t.Fatalf("expected the original *Error to be reused")
	}
	if err.Code != InvalidParams {
		t.Fatalf("Code = %v, want %v", err.Code, InvalidParams)
	}
	if err.Details["field"] != "source_code" {
		t.Fatalf("details lost: %v", err.Details)
	}
}

func TestGetCodeThroughChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ContestNotRunning))
	if got := GetCode(err); got != ContestNotRunning {
		t.Fatalf("GetCode() = %v, want %v", got, ContestNotRunning)
	}
	if !Is(err, ContestNotRunning) {
		t.Fatalf("Is() = false, want true")
	}
	if got := GetCode(errors.New("plain")); got != InternalServerError {
		t.Fatalf("GetCode(plain) = %v", got)
	}
	if got := GetCode(nil); got != Success {
		t.Fatalf("GetCode(nil) = %v", got)
	}
}

func TestNewfAndDetails(t *testing.T) {
	err := Newf(ProblemNotFound, "problem %s not found", "A").WithDetail("contest_id", "c1")
	if err.Error() != "problem A not found" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if err.Details["contest_id"] != "c1" {
		t.Fatalf("details = %v", err.Details)
	}
	if err.Stack == "" {
		t.Fatalf("expected stack to be captured")
	}
}
