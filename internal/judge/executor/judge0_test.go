package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"contestjudge/internal/judge/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Judge0Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewJudge0Client(Judge0Config{
		BaseURL:      srv.URL,
		AuthToken:    "secret",
		PollInterval: time.Millisecond,
		MaxPolls:     3,
		BreakerName:  t.Name(),
	}, srv.Client())
	require.NoError(t, err)
	return client
}

func TestJudge0ExecuteAccepted(t *testing.T) {
	var got judge0Submission
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		assert.Equal(t, "secret", r.Header.Get("X-Auth-Token"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"token":"t1","status":{"id":3,"description":"Accepted"},"time":"0.012","memory":1024}`))
	})

	resp, err := client.Execute(context.Background(), Request{
		Language:       "python",
		SourceCode:     "print(input())",
		Stdin:          "1\n",
		ExpectedOutput: "1\n",
		TimeLimitMs:    1500,
		MemoryLimitKb:  65536,
	})
	require.NoError(t, err)
	assert.Equal(t, result.VerdictAC, resp.Outcome)
	assert.Equal(t, int64(12), resp.CPUTimeMs)
	assert.Equal(t, int64(1024), resp.MemoryKb)

	assert.Equal(t, 71, got.LanguageID)
	assert.Equal(t, b64("print(input())"), got.SourceCode)
	assert.Equal(t, b64("1\n"), got.Stdin)
	assert.InDelta(t, 1.5, got.CPUTimeLimit, 1e-9)
	assert.Equal(t, int64(65536), got.MemoryLimit)
}

func TestJudge0StatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		outcome result.Verdict
		stderr  string
		errIs   error
	}{
		{name: "wrong answer", body: `{"status":{"id":4}}`, outcome: result.VerdictWA},
		{name: "time limit", body: `{"status":{"id":5},"time":"2.001"}`, outcome: result.VerdictTLE},
		{name: "compile error", body: `{"status":{"id":6},"compile_output":"` + b64("error: x") + `"}`, outcome: result.VerdictCE, stderr: "error: x"},
		{name: "runtime error", body: `{"status":{"id":11},"memory":100,"stderr":"` + b64("boom") + `"}`, outcome: result.VerdictRE, stderr: "boom"},
		{name: "memory limit via signal", body: `{"status":{"id":7},"memory":65536}`, outcome: result.VerdictMLE},
		{name: "exec format", body: `{"status":{"id":14}}`, outcome: result.VerdictRE},
		{name: "internal error is transient", body: `{"status":{"id":13}}`, errIs: ErrUnavailable},
		{name: "unknown status", body: `{"status":{"id":99}}`, errIs: ErrMalformedResponse},
		{name: "missing status", body: `{"token":"x"}`, errIs: ErrMalformedResponse},
		{name: "garbage", body: `not json`, errIs: ErrMalformedResponse},
		{name: "bad time", body: `{"status":{"id":3},"time":"fast"}`, errIs: ErrMalformedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			resp, err := client.Execute(context.Background(), Request{Language: "cpp", SourceCode: "x", MemoryLimitKb: 65536})
			if tc.errIs != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.errIs), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, resp.Outcome)
			assert.Equal(t, tc.stderr, resp.Stderr)
		})
	}
}

func TestJudge0PollsPendingSubmission(t *testing.T) {
	var gets atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_, _ = w.Write([]byte(`{"token":"abc","status":{"id":1}}`))
			return
		}
		assert.Equal(t, "/submissions/abc", r.URL.Path)
		if gets.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"token":"abc","status":{"id":2}}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"abc","status":{"id":3}}`))
	})

	resp, err := client.Execute(context.Background(), Request{Language: "go", SourceCode: "package main"})
	require.NoError(t, err)
	assert.Equal(t, result.VerdictAC, resp.Outcome)
	assert.Equal(t, int32(2), gets.Load())
}

func TestJudge0PollingGivesUp(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"abc","status":{"id":2}}`))
	})
	_, err := client.Execute(context.Background(), Request{Language: "go", SourceCode: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestJudge0HTTPErrors(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
		errIs     error
	}{
		{status: http.StatusInternalServerError, transient: true, errIs: ErrUnavailable},
		{status: http.StatusServiceUnavailable, transient: true, errIs: ErrUnavailable},
		{status: http.StatusTooManyRequests, transient: true, errIs: ErrUnavailable},
		{status: http.StatusUnprocessableEntity, transient: false, errIs: ErrRejected},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := client.Execute(context.Background(), Request{Language: "c", SourceCode: "x"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.errIs), "got %v", err)
			assert.Equal(t, tc.transient, IsTransient(err))
		})
	}
}

func TestJudge0UnsupportedLanguage(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	_, err := client.Execute(context.Background(), Request{Language: "cobol", SourceCode: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Zero(t, calls.Load())
}

func TestJudge0ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewJudge0Client(Judge0Config{BaseURL: url, BreakerName: t.Name()}, nil)
	require.NoError(t, err)
	_, err = client.Execute(context.Background(), Request{Language: "cpp", SourceCode: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(ErrUnavailable))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(ErrMalformedResponse))
	assert.False(t, IsTransient(nil))
}
