package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildRequest(t *testing.T) {
	commands := Registry()
	dir := t.TempDir()
	source := filepath.Join(dir, "main.cpp")
	if err := os.WriteFile(source, []byte("int main(){}"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	cases := []struct {
		name    string
		key     string
		args    []string
		path    string
		body    map[string]string
		wantErr bool
	}{
		{
			name: "submit from file with aliases",
			key:  "submit create",
			args: []string{"contest=spring", "problem=a", "lang=cpp", "file=" + source, "idempotency_key=k1"},
			path: "/api/v1/contests/spring/submissions",
			body: map[string]string{"problem_id": "a", "language": "cpp", "source_code": "int main(){}"},
		},
		{
			name: "status",
			key:  "submit status",
			args: []string{"submission_id=s-1"},
			path: "/api/v1/submissions/s-1",
		},
		{
			name: "escaped contest",
			key:  "standings show",
			args: []string{"contest_id=a b"},
			path: "/api/v1/contests/a%20b/standings",
		},
		{
			name:    "missing path param",
			key:     "contest phase",
			wantErr: true,
		},
		{
			name:    "missing source",
			key:     "submit create",
			args:    []string{"contest=spring", "problem=a", "lang=cpp"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		cmd, ok := commands[tc.key]
		if !ok {
			t.Fatalf("%s: command %q not registered", tc.name, tc.key)
		}
		params, err := ParseArgs(tc.args)
		if err != nil {
			t.Fatalf("%s: parse args: %v", tc.name, err)
		}
		req, err := BuildRequest(cmd, params)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: build request: %v", tc.name, err)
		}
		if req.Path != tc.path {
			t.Fatalf("%s: path = %s, want %s", tc.name, req.Path, tc.path)
		}
		if tc.body == nil {
			if len(req.Body) != 0 {
				t.Fatalf("%s: unexpected body %s", tc.name, req.Body)
			}
			continue
		}
		var body map[string]string
		if err := json.Unmarshal(req.Body, &body); err != nil {
			t.Fatalf("%s: decode body: %v", tc.name, err)
		}
		for k, v := range tc.body {
			if body[k] != v {
				t.Fatalf("%s: body[%s] = %q, want %q", tc.name, k, body[k], v)
			}
		}
		if req.Headers["Idempotency-Key"] != "k1" {
			t.Fatalf("%s: idempotency header = %q", tc.name, req.Headers["Idempotency-Key"])
		}
	}
}

func TestParseArgsRejectsBareToken(t *testing.T) {
	if _, err := ParseArgs([]string{"contest"}); err == nil {
		t.Fatalf("expected error for token without '='")
	}
}
