package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	submissionID = Field{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Required: true}
	contestID    = Field{Name: "contest_id", Aliases: []string{"contest"}, Prompt: "contest_id", Required: true}
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "submit",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/api/v1/contests/:contest_id/submissions",
			RequiresAuth: true,
			Fields: []Field{
				contestID,
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Required: true},
				{Name: "source_code", Prompt: "source_code", Required: true},
				{Name: "source_file", Aliases: []string{"file"}, Prompt: "source_file", Type: FieldFile},
				{Name: "idempotency_key", Prompt: "idempotency_key"},
			},
		},
		{
			Service:      "submit",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			RequiresAuth: true,
			Fields:       []Field{submissionID},
		},
		{
			Service:      "submit",
			Action:       "source",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/source",
			RequiresAuth: true,
			Fields:       []Field{submissionID},
		},
		{
			Service:      "submit",
			Action:       "cancel",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/cancel",
			RequiresAuth: true,
			Fields:       []Field{submissionID},
		},
		{
			Service:      "standings",
			Action:       "show",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:contest_id/standings",
			Fields:       []Field{contestID},
		},
		{
			Service:      "standings",
			Action:       "watch",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:contest_id/standings/stream",
			Stream:       true,
			Fields:       []Field{contestID},
		},
		{
			Service:      "contest",
			Action:       "phase",
			Method:       "GET",
			PathTemplate: "/api/v1/contests/:contest_id/phase",
			Fields:       []Field{contestID},
		},
		{
			Service:      "judge",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/admin/judge/submissions/:id",
			RequiresAuth: true,
			Fields:       []Field{submissionID},
		},
		{
			Service:      "judge",
			Action:       "stats",
			Method:       "GET",
			PathTemplate: "/api/v1/admin/judge/stats",
			RequiresAuth: true,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// Keys returns the sorted command keys, for help and completion.
func Keys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	if cmd.Key() == "submit create" {
		headers["Idempotency-Key"] = params.Get("idempotency_key")
	}

	var body []byte
	if cmd.Method == "POST" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"contest_id", "id"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Key() == "submit create" {
		return buildSubmitCreatePayload(params)
	}
	return nil, nil
}

func buildSubmitCreatePayload(params Params) (interface{}, error) {
	sourceCode := params.Get("source_code")
	if (sourceCode == "" || sourceCode == "_file_") && params.Get("source_file") != "" {
		var err error
		sourceCode, err = ReadFile(params.Get("source_file"))
		if err != nil {
			return nil, err
		}
	}
	if sourceCode == "" || sourceCode == "_file_" {
		return nil, fmt.Errorf("source_code is required")
	}
	return map[string]string{
		"problem_id":  params.Get("problem_id"),
		"language":    params.Get("language"),
		"source_code": sourceCode,
	}, nil
}
