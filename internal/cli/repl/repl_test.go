package repl

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"contestjudge/internal/cli/command"
	httpclient "contestjudge/internal/cli/http"
	"contestjudge/internal/cli/state"
	"contestjudge/internal/common/http/middleware"
)

const testSecret = "cli-test-secret"

func newSession(t *testing.T, handler http.HandlerFunc) (*Session, *bytes.Buffer, *state.TokenState) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokenState := &state.TokenState{}
	client := httpclient.New(srv.URL, time.Second, func() string { return tokenState.AccessToken })
	out := &bytes.Buffer{}
	session := New(client, command.Registry(), tokenState, Options{
		StatePath: filepath.Join(t.TempDir(), "state.json"),
		Issuer:    TokenIssuer{Secret: testSecret, Issuer: "judge", TTL: time.Hour},
		Out:       out,
	})
	return session, out, tokenState
}

func TestIssuedTokenIsAcceptedByServer(t *testing.T) {
	verifier, err := middleware.NewTokenVerifier(middleware.AuthConfig{JWTSecret: testSecret, JWTIssuer: "judge"})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	var gotUser, gotPath string
	session, out, tokenState := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ident, err := verifier.Verify(r.Context(), raw)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotUser = ident.UserID + "/" + ident.Role
		_, _ = w.Write([]byte(`{"code":0,"data":{"id":"s-1"}}`))
	})

	ctx := context.Background()
	if err := session.Execute(ctx, "submit status id=s-1"); err == nil {
		t.Fatalf("expected error without token")
	}
	if err := session.Execute(ctx, "auth issue user_id=alice role=admin"); err != nil {
		t.Fatalf("auth issue: %v", err)
	}
	if tokenState.UserID != "alice" || tokenState.AccessToken == "" {
		t.Fatalf("token state not updated: %+v", tokenState)
	}
	saved, err := state.Load(session.opts.StatePath)
	if err != nil || saved.AccessToken != tokenState.AccessToken {
		t.Fatalf("token state not persisted: %+v %v", saved, err)
	}
	if err := session.Execute(ctx, "submit status id=s-1"); err != nil {
		t.Fatalf("submit status: %v", err)
	}
	if gotPath != "/api/v1/submissions/s-1" || gotUser != "alice/admin" {
		t.Fatalf("server saw path=%s user=%s", gotPath, gotUser)
	}
	if !strings.Contains(out.String(), "HTTP 200") {
		t.Fatalf("missing response output: %s", out.String())
	}
}

func TestExecuteErrors(t *testing.T) {
	session, _, _ := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	cases := []struct {
		line string
		want string
	}{
		{"judge", "invalid command"},
		{"judge launch", "unknown command"},
		{"contest phase", "missing contest_id"},
		{"contest phase contest", "invalid param"},
		{"auth issue", "user_id is required"},
		{`submit status id="unterminated`, "parse command failed"},
	}
	for _, tc := range cases {
		err := session.Execute(ctx, tc.line)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%q: error = %v, want %q", tc.line, err, tc.want)
		}
	}
	if err := session.Execute(ctx, "exit"); !errors.Is(err, ErrExit) {
		t.Fatalf("exit returned %v", err)
	}
	if err := session.Execute(ctx, "   "); err != nil {
		t.Fatalf("blank line returned %v", err)
	}
}

func TestPublicCommandNeedsNoToken(t *testing.T) {
	session, out, _ := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected authorization header")
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"phase":"Running"}}`))
	})
	if err := session.Execute(context.Background(), "contest phase contest=spring"); err != nil {
		t.Fatalf("contest phase: %v", err)
	}
	if !strings.Contains(out.String(), "Running") {
		t.Fatalf("output = %s", out.String())
	}
}
