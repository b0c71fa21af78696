// Package hooks runs external commands around graphql_query. A before_query
// hook reads the GraphQL document on stdin, an after_query hook reads the
// response's data payload; both answer with a JSON verdict on stdout.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

// Config is the hook runner's own config type.
type Config struct {
	DefaultTimeout time.Duration
	BeforeQuery    []Entry
	AfterQuery     []Entry
}

// Entry defines a single command-based hook. The hook runs only when Pattern
// matches its input.
type Entry struct {
	Pattern string
	Command string
	Args    []string
	Timeout time.Duration // 0 means use DefaultTimeout
}

// BeforeQueryResult is the JSON response from a before_query hook.
type BeforeQueryResult struct {
	Accept        bool   `json:"accept"`
	ModifiedQuery string `json:"modified_query,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// AfterQueryResult is the JSON response from an after_query hook.
// ModifiedData, when present, replaces the data payload.
type AfterQueryResult struct {
	Accept       bool            `json:"accept"`
	ModifiedData json.RawMessage `json:"modified_data,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

type compiledHook struct {
	pattern *regexp.Regexp
	command string
	args    []string
	timeout time.Duration
}

// Runner executes command-based hooks. Safe for concurrent use.
type Runner struct {
	beforeQuery []compiledHook
	afterQuery  []compiledHook
	logger      zerolog.Logger
}

// NewRunner compiles the hook patterns. Returns an error on an invalid regex,
// an empty command or a missing timeout.
func NewRunner(config Config, logger zerolog.Logger) (*Runner, error) {
	compile := func(stage string, entries []Entry) ([]compiledHook, error) {
		compiled := make([]compiledHook, len(entries))
		for i, e := range entries {
			re, err := regexp.Compile(e.Pattern)
			if err != nil {
				return nil, fmt.Errorf("hooks: %s[%d]: invalid regex pattern %q: %v", stage, i, e.Pattern, err)
			}
			if strings.TrimSpace(e.Command) == "" {
				return nil, fmt.Errorf("hooks: %s[%d]: command is required", stage, i)
			}
			timeout := e.Timeout
			if timeout == 0 {
				timeout = config.DefaultTimeout
			}
			if timeout <= 0 {
				return nil, fmt.Errorf("hooks: %s[%d]: timeout must be > 0", stage, i)
			}
			compiled[i] = compiledHook{
				pattern: re,
				command: e.Command,
				args:    e.Args,
				timeout: timeout,
			}
		}
		return compiled, nil
	}

	before, err := compile("before_query", config.BeforeQuery)
	if err != nil {
		return nil, err
	}
	after, err := compile("after_query", config.AfterQuery)
	if err != nil {
		return nil, err
	}
	return &Runner{beforeQuery: before, afterQuery: after, logger: logger}, nil
}

// HasAfterQueryHooks returns true if any AfterQuery hooks are configured.
func (r *Runner) HasAfterQueryHooks() bool {
	return len(r.afterQuery) > 0
}

// RunBeforeQuery passes the document through every matching hook in order,
// each seeing the previous hook's rewrite. Returns the final document and the
// commands that ran.
func (r *Runner) RunBeforeQuery(ctx context.Context, query string) (string, []string, error) {
	current := query
	var executed []string
	for _, hook := range r.beforeQuery {
		if !hook.pattern.MatchString(current) {
			continue
		}
		executed = append(executed, hook.command)
		output, err := r.executeHook(ctx, hook, current)
		if err != nil {
			return "", executed, fmt.Errorf("before_query hook error: %w", err)
		}

		var result BeforeQueryResult
		if err := json.Unmarshal(output, &result); err != nil {
			return "", executed, fmt.Errorf("before_query hook returned unparseable response (command: %s): %w", hook.command, err)
		}
		if !result.Accept {
			return "", executed, rejection("query rejected by hook", result.ErrorMessage)
		}
		if result.ModifiedQuery != "" {
			current = result.ModifiedQuery
		}
	}
	return current, executed, nil
}

// RunAfterQuery passes the data payload through every matching hook in
// order. Patterns match the payload's JSON text.
func (r *Runner) RunAfterQuery(ctx context.Context, data json.RawMessage) (json.RawMessage, []string, error) {
	current := data
	var executed []string
	for _, hook := range r.afterQuery {
		if !hook.pattern.Match(current) {
			continue
		}
		executed = append(executed, hook.command)
		output, err := r.executeHook(ctx, hook, string(current))
		if err != nil {
			return nil, executed, fmt.Errorf("after_query hook error: %w", err)
		}

		var result AfterQueryResult
		if err := json.Unmarshal(output, &result); err != nil {
			return nil, executed, fmt.Errorf("after_query hook returned unparseable response (command: %s): %w", hook.command, err)
		}
		if !result.Accept {
			return nil, executed, rejection("result rejected by hook", result.ErrorMessage)
		}
		if len(result.ModifiedData) > 0 && string(result.ModifiedData) != "null" {
			current = result.ModifiedData
		}
	}
	return current, executed, nil
}

func rejection(fallback, msg string) error {
	if msg == "" {
		msg = fallback
	}
	return &gqlclient.Error{Kind: gqlclient.KindValidation, Err: errors.New(msg)}
}

func (r *Runner) executeHook(ctx context.Context, hook compiledHook, input string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, hook.timeout)
	defer cancel()

	// No shell: the command runs directly with its own args.
	cmd := exec.CommandContext(ctx, hook.command, hook.args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.WaitDelay = time.Second

	// Stdout carries the verdict.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			r.logger.Warn().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
		}
		// Any failure stops the pipeline: non-zero exit, crash or timeout.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("hook timed out after %s: %s", hook.timeout, hook.command)
		}
		return nil, fmt.Errorf("hook failed (command: %s): %w", hook.command, err)
	}
	if stderr.Len() > 0 {
		r.logger.Debug().Str("command", hook.command).Str("stderr", stderr.String()).Msg("hook stderr output")
	}
	return output, nil
}
