package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contestjudge/internal/judge/result"

	"github.com/zeromicro/go-zero/core/breaker"
)

const (
	judge0StatusInQueue    = 1
	judge0StatusProcessing = 2
	judge0StatusAccepted   = 3
	judge0StatusWrong      = 4
	judge0StatusTLE        = 5
	judge0StatusCE         = 6
	judge0StatusRESIGSEGV  = 7
	judge0StatusREOther    = 12
	judge0StatusInternal   = 13
	judge0StatusExecFormat = 14
)

// DefaultLanguages maps language keys to Judge0 CE language ids.
var DefaultLanguages = map[string]int{
	"cpp":        54,
	"c":          50,
	"python":     71,
	"java":       62,
	"go":         60,
	"rust":       73,
	"javascript": 63,
}

// Judge0Config configures the Judge0 client.
type Judge0Config struct {
	BaseURL      string         `yaml:"baseURL"`
	AuthToken    string         `yaml:"authToken"`
	Languages    map[string]int `yaml:"languages"`
	PollInterval time.Duration  `yaml:"pollInterval"`
	MaxPolls     int            `yaml:"maxPolls"`
	BreakerName  string         `yaml:"breakerName"`
}

// Judge0Client implements Executor against a Judge0-compatible HTTP API.
type Judge0Client struct {
	cfg     Judge0Config
	http    *http.Client
	breaker breaker.Breaker
}

type judge0Submission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit    int64   `json:"memory_limit,omitempty"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Details struct {
	Token         string        `json:"token"`
	Status        *judge0Status `json:"status"`
	Stderr        *string       `json:"stderr"`
	CompileOutput *string       `json:"compile_output"`
	Message       *string       `json:"message"`
	Time          *string       `json:"time"`
	Memory        *int64        `json:"memory"`
}

// NewJudge0Client creates a client. httpClient may be nil.
func NewJudge0Client(cfg Judge0Config, httpClient *http.Client) (*Judge0Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("judge0 base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 50
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "judge0"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Judge0Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: breaker.NewBreaker(breaker.WithName(cfg.BreakerName)),
	}, nil
}

// Languages returns the configured language keys.
func (c *Judge0Client) Languages() []string {
	out := make([]string, 0, len(c.cfg.Languages))
	for lang := range c.cfg.Languages {
		out = append(out, lang)
	}
	return out
}

// Execute submits one run and waits for its terminal status.
// Only transient failures count against the breaker.
func (c *Judge0Client) Execute(ctx context.Context, req Request) (Response, error) {
	langID, ok := c.cfg.Languages[req.Language]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	var resp Response
	err := c.breaker.DoWithAcceptable(func() error {
		var err error
		resp, err = c.execute(ctx, langID, req)
		return err
	}, func(err error) bool {
		return !IsTransient(err)
	})
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return Response{}, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}
	return resp, err
}

func (c *Judge0Client) execute(ctx context.Context, langID int, req Request) (Response, error) {
	body, err := json.Marshal(judge0Submission{
		SourceCode:     encode(req.SourceCode),
		LanguageID:     langID,
		Stdin:          encode(req.Stdin),
		ExpectedOutput: encode(req.ExpectedOutput),
		CPUTimeLimit:   float64(req.TimeLimitMs) / 1000,
		MemoryLimit:    req.MemoryLimitKb,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal judge0 submission failed: %w", err)
	}

	details, err := c.do(ctx, http.MethodPost, "/submissions?base64_encoded=true&wait=true", body)
	if err != nil {
		return Response{}, err
	}
	for polls := 0; details.Status.ID == judge0StatusInQueue || details.Status.ID == judge0StatusProcessing; polls++ {
		if details.Token == "" {
			return Response{}, fmt.Errorf("%w: pending status without token", ErrMalformedResponse)
		}
		if polls >= c.cfg.MaxPolls {
			return Response{}, fmt.Errorf("%w: submission %s still pending after %d polls", ErrUnavailable, details.Token, polls)
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
		details, err = c.do(ctx, http.MethodGet, "/submissions/"+details.Token+"?base64_encoded=true", nil)
		if err != nil {
			return Response{}, err
		}
	}
	return toResponse(details, req.MemoryLimitKb)
}

func (c *Judge0Client) do(ctx context.Context, method, path string, body []byte) (judge0Details, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return judge0Details{}, fmt.Errorf("build judge0 request failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.AuthToken != "" {
		httpReq.Header.Set("X-Auth-Token", c.cfg.AuthToken)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return judge0Details{}, ctx.Err()
		}
		return judge0Details{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return judge0Details{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	switch {
	case httpResp.StatusCode >= 500, httpResp.StatusCode == http.StatusTooManyRequests:
		return judge0Details{}, fmt.Errorf("%w: status %d", ErrUnavailable, httpResp.StatusCode)
	case httpResp.StatusCode >= 400:
		return judge0Details{}, fmt.Errorf("%w: status %d: %s", ErrRejected, httpResp.StatusCode, truncate(string(payload), 256))
	}

	var details judge0Details
	if err := json.Unmarshal(payload, &details); err != nil {
		return judge0Details{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if details.Status == nil {
		return judge0Details{}, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}
	return details, nil
}

func toResponse(details judge0Details, memoryLimitKb int64) (Response, error) {
	resp := Response{}
	if details.Time != nil && *details.Time != "" {
		seconds, err := strconv.ParseFloat(*details.Time, 64)
		if err != nil {
			return Response{}, fmt.Errorf("%w: time %q", ErrMalformedResponse, *details.Time)
		}
		resp.CPUTimeMs = int64(seconds * 1000)
	}
	if details.Memory != nil {
		resp.MemoryKb = *details.Memory
	}
	if resp.CPUTimeMs < 0 || resp.MemoryKb < 0 {
		return Response{}, fmt.Errorf("%w: negative usage", ErrMalformedResponse)
	}

	switch id := details.Status.ID; {
	case id == judge0StatusAccepted:
		resp.Outcome = result.VerdictAC
	case id == judge0StatusWrong:
		resp.Outcome = result.VerdictWA
	case id == judge0StatusTLE:
		resp.Outcome = result.VerdictTLE
	case id == judge0StatusCE:
		resp.Outcome = result.VerdictCE
		resp.Stderr = decode(details.CompileOutput)
		return resp, nil
	case id >= judge0StatusRESIGSEGV && id <= judge0StatusREOther:
		resp.Outcome = result.VerdictRE
		if memoryLimitKb > 0 && resp.MemoryKb >= memoryLimitKb {
			resp.Outcome = result.VerdictMLE
		}
	case id == judge0StatusInternal:
		return Response{}, fmt.Errorf("%w: internal error: %s", ErrUnavailable, decode(details.Message))
	case id == judge0StatusExecFormat:
		resp.Outcome = result.VerdictRE
	default:
		return Response{}, fmt.Errorf("%w: unknown status %d (%s)", ErrMalformedResponse, id, details.Status.Description)
	}
	resp.Stderr = decode(details.Stderr)
	return resp, nil
}

func encode(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// decode tolerates servers that ignore base64_encoded and return plain text.
func decode(s *string) string {
	if s == nil {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(*s))
	if err != nil {
		return *s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
