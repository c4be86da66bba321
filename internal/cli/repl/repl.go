package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"contestjudge/internal/cli/command"
	httpclient "contestjudge/internal/cli/http"
	"contestjudge/internal/cli/state"
	"contestjudge/internal/common/http/middleware"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// ErrExit is returned by the exit and quit commands.
var ErrExit = errors.New("exit")

// TokenIssuer configures local token minting for "auth issue".
type TokenIssuer struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Options holds Session settings.
type Options struct {
	StatePath   string
	HistoryPath string
	PrettyJSON  bool
	Issuer      TokenIssuer
	Out         io.Writer
}

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	tokenState *state.TokenState
	opts       Options
	out        io.Writer
	prompt     func(label string) (string, error)
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, opts Options) *Session {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Session{
		client:     client,
		commands:   commands,
		tokenState: tokenState,
		opts:       opts,
		out:        out,
		prompt: func(label string) (string, error) {
			return "", fmt.Errorf("missing %s", label)
		},
	}
}

// Run reads commands until exit or EOF.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "judgectl> ",
		HistoryFile:     s.opts.HistoryPath,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.out = rl.Stdout()
	s.prompt = func(label string) (string, error) {
		rl.SetPrompt(label + ": ")
		defer rl.SetPrompt("judgectl> ")
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		if err := s.Execute(ctx, line); err != nil {
			if errors.Is(err, ErrExit) {
				s.printLine("bye")
				return nil
			}
			s.printLine("error: %v", err)
		}
	}
}

// Execute runs one input line.
func (s *Session) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	return s.ExecuteTokens(ctx, tokens)
}

// ExecuteTokens runs an already tokenized command.
func (s *Session) ExecuteTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	switch tokens[0] {
	case "exit", "quit":
		return ErrExit
	case "help":
		s.printHelp()
		return nil
	case "set":
		return s.handleSet(tokens[1:])
	case "show":
		return s.handleShow(tokens[1:])
	case "auth":
		return s.handleAuth(tokens[1:])
	}

	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params, err := command.ParseArgs(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	if params.Get("source_file") != "" && params.Get("source_code") == "" {
		params.Set("source_code", "_file_")
	}
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		return fmt.Errorf("%s requires a token, use: set token <jwt> or auth issue", cmd.Key())
	}
	if s.tokenState.Expired(time.Now()) {
		s.printLine("warning: token expired at %s", s.tokenState.ExpiresAt.Format(time.RFC3339))
	}

	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	if cmd.Stream {
		return s.watch(ctx, req.Path)
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) watch(ctx context.Context, path string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	s.printLine("watching %s, Ctrl-C to stop", path)
	return s.client.Watch(ctx, path, func(data []byte) {
		s.printBody(data)
	})
}

func (s *Session) handleSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set base <url> | timeout <duration> | token <jwt>")
	}
	switch args[0] {
	case "base":
		s.client.SetBaseURL(args[1])
		s.printLine("base set to %s", args[1])
	case "timeout":
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		*s.tokenState = state.TokenState{AccessToken: args[1]}
		if err := state.Save(s.opts.StatePath, *s.tokenState); err != nil {
			return err
		}
		s.printLine("token updated")
	default:
		return fmt.Errorf("unknown set command: %s", args[0])
	}
	return nil
}

func (s *Session) handleShow(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: show token|config")
	}
	switch args[0] {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return nil
		}
		s.printLine("token: %s", maskToken(s.tokenState.AccessToken))
		if s.tokenState.UserID != "" {
			s.printLine("user: %s (%s)", s.tokenState.UserID, s.tokenState.Role)
		}
		if !s.tokenState.ExpiresAt.IsZero() {
			s.printLine("expires: %s", s.tokenState.ExpiresAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.opts.StatePath)
		s.printLine("historyPath: %s", s.opts.HistoryPath)
	default:
		return fmt.Errorf("usage: show token|config")
	}
	return nil
}

func (s *Session) handleAuth(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: auth issue user_id=<id> [role=participant|admin] | auth clear")
	}
	switch args[0] {
	case "issue":
		if s.opts.Issuer.Secret == "" {
			return fmt.Errorf("jwtSecret is not configured")
		}
		params, err := command.ParseArgs(args[1:])
		if err != nil {
			return err
		}
		userID := params.Get("user_id")
		if userID == "" {
			return fmt.Errorf("user_id is required")
		}
		role := params.Get("role")
		if role == "" {
			role = middleware.RoleParticipant
		}
		token, err := middleware.IssueToken(s.opts.Issuer.Secret, s.opts.Issuer.Issuer, userID, role, s.opts.Issuer.TTL)
		if err != nil {
			return fmt.Errorf("issue token failed: %w", err)
		}
		*s.tokenState = state.TokenState{
			AccessToken: token,
			UserID:      userID,
			Role:        role,
			ExpiresAt:   time.Now().Add(s.opts.Issuer.TTL),
		}
		if err := state.Save(s.opts.StatePath, *s.tokenState); err != nil {
			return err
		}
		s.printLine("token issued for %s (%s)", userID, role)
	case "clear":
		*s.tokenState = state.TokenState{}
		if err := state.Clear(s.opts.StatePath); err != nil {
			return err
		}
		s.printLine("token cleared")
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
	return nil
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.prompt(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	s.printBody(resp.Body)
}

func (s *Session) printBody(body []byte) {
	if s.opts.PrettyJSON {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(body))
}

func (s *Session) completer() *readline.PrefixCompleter {
	services := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, key := range command.Keys(s.commands) {
		service, action, _ := strings.Cut(key, " ")
		if _, ok := services[service]; !ok {
			order = append(order, service)
		}
		services[service] = append(services[service], readline.PcItem(action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
		readline.PcItem("auth", readline.PcItem("issue"), readline.PcItem("clear")),
	}
	for _, service := range order {
		items = append(items, readline.PcItem(service, services[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("commands:")
	for _, key := range command.Keys(s.commands) {
		s.printLine("  %s", key)
	}
	s.printLine("system: help | exit | set base|timeout|token | show token|config | auth issue|clear")
	s.printLine("examples:")
	s.printLine("  auth issue user_id=alice")
	s.printLine("  submit create contest=spring problem=a lang=cpp file=./main.cpp")
	s.printLine("  standings watch contest=spring")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

func maskToken(token string) string {
	if len(token) > 12 {
		return token[:6] + "..." + token[len(token)-4:]
	}
	return token
}
