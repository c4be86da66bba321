package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"contestjudge/internal/cli/command"
	"contestjudge/internal/cli/config"
	httpclient "contestjudge/internal/cli/http"
	"contestjudge/internal/cli/repl"
	"contestjudge/internal/cli/state"
)

const defaultConfigPath = "configs/judgectl.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token")
	statePath := flag.String("state", "", "Override token state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: judgectl [flags] [<service> <action> key=value ...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	tokenState, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token state failed: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		tokenState.AccessToken = *token
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return tokenState.AccessToken
	})
	session := repl.New(client, command.Registry(), &tokenState, repl.Options{
		StatePath:   cfg.StatePath,
		HistoryPath: cfg.HistoryPath,
		PrettyJSON:  *cfg.PrettyJSON,
		Issuer: repl.TokenIssuer{
			Secret: cfg.JWTSecret,
			Issuer: cfg.JWTIssuer,
			TTL:    cfg.TokenTTL,
		},
	})

	ctx := context.Background()
	// Arguments run a single command; otherwise start the interactive shell.
	if flag.NArg() > 0 {
		if err := session.ExecuteTokens(ctx, flag.Args()); err != nil && !errors.Is(err, repl.ErrExit) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
