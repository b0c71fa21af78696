package gqlmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
)

const (
	opGraphQLQuery = "graphql_query"

	truncatedSuffix = "...[truncated] Result is too long! Select fewer fields or request a smaller page."
)

// GraphQLQuery executes an ad hoc GraphQL document and returns only Result.
// All errors (transport failures, GraphQL errors, protection rejections,
// malformed variables) are converted to Result.Error, so callers only need to
// check Result.Error, never a Go error.
func (g *GraphQLMcp) GraphQLQuery(ctx context.Context, input GraphQLQueryInput) *Result {
	startTime := time.Now()
	query := input.Query

	// 1. Check query length (before any parsing)
	if len(query) > g.config.Query.MaxQueryLength {
		return g.queryError(opGraphQLQuery, startTime, gqlclient.Validationf("GraphQL query too long: %d bytes exceeds maximum of %d bytes", len(query), g.config.Query.MaxQueryLength))
	}

	// 2. Parse variables
	variables, err := parseVariables(input.Variables)
	if err != nil {
		return g.queryError(opGraphQLQuery, startTime, err)
	}

	if strings.TrimSpace(query) == "" {
		return g.queryError(opGraphQLQuery, startTime, gqlclient.Validationf("query must be non-empty"))
	}

	// 3. Run BeforeQuery hooks. Protection and timeout rules see the result.
	var beforeHooks, afterHooks []string
	if len(g.goBeforeHooks) > 0 {
		query, err = g.runGoBeforeHooks(ctx, query)
		for _, entry := range g.goBeforeHooks {
			beforeHooks = append(beforeHooks, entry.Name)
		}
	} else if g.cmdHooks != nil {
		query, beforeHooks, err = g.cmdHooks.RunBeforeQuery(ctx, query)
	}
	if err != nil {
		return g.queryError(opGraphQLQuery, startTime, err)
	}

	// 4. Protection check
	if err := g.protection.Check(query); err != nil {
		return g.queryError(opGraphQLQuery, startTime, err)
	}

	// 5. Determine timeout and execute
	timeout, timeoutRule := g.timeoutMgr.Match(query)
	resp, err := g.execute(ctx, gqlclient.Request{
		Query:         query,
		Variables:     variables,
		OperationName: input.OperationName,
	}, timeout)
	if err != nil {
		return g.queryError(opGraphQLQuery, startTime, err)
	}

	// 6. Apply sanitization to data values
	result := newResult(resp)
	sanitized := false
	if data, ok := result.Fields["data"]; ok && g.sanitizer.HasRules() {
		clean, err := g.sanitizer.JSON(data)
		if err != nil {
			return g.queryError(opGraphQLQuery, startTime, err)
		}
		result.Fields["data"] = clean
		sanitized = true
	}

	// 7. Run AfterQuery hooks on the data payload
	if data, ok := result.Fields["data"]; ok && len(data) > 0 && string(data) != "null" {
		var modified json.RawMessage
		if len(g.goAfterHooks) > 0 {
			modified, err = g.runGoAfterHooks(ctx, data)
			for _, entry := range g.goAfterHooks {
				afterHooks = append(afterHooks, entry.Name)
			}
		} else if g.cmdHooks != nil && g.cmdHooks.HasAfterQueryHooks() {
			modified, afterHooks, err = g.cmdHooks.RunAfterQuery(ctx, data)
		} else {
			modified = data
		}
		if err != nil {
			return g.queryError(opGraphQLQuery, startTime, err)
		}
		result.Fields["data"] = modified
	}

	// 8. Apply max result length truncation
	size := g.truncateIfNeeded(result)
	g.metrics.ObserveResultBytes(opGraphQLQuery, size)

	// 9. Log successful execution with pipeline details
	logEvent := g.logger.Info().
		Str("query", truncateForLog(query, 200)).
		Dur("duration", time.Since(startTime)).
		Int("result_bytes", size)
	if input.OperationName != "" {
		logEvent = logEvent.Str("operation_name", input.OperationName)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	if len(beforeHooks) > 0 {
		logEvent = logEvent.Strs("before_hooks", beforeHooks)
	}
	if len(afterHooks) > 0 {
		logEvent = logEvent.Strs("after_hooks", afterHooks)
	}
	if result.Error != "" {
		logEvent = logEvent.Bool("truncated", true)
	}
	logEvent.Msg("graphql query executed")
	g.metrics.Observe(opGraphQLQuery, nil, time.Since(startTime))

	return result
}

// parseVariables decodes the variables string. Blank means no variables;
// anything but a JSON object (or null) is rejected.
func parseVariables(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var vars map[string]any
	if err := dec.Decode(&vars); err != nil {
		return nil, gqlclient.Validationf("Variables JSON format error")
	}
	if dec.More() {
		return nil, gqlclient.Validationf("Variables JSON format error")
	}
	return vars, nil
}

// runGoBeforeHooks runs Go-interface BeforeQuery hooks in middleware chain.
func (g *GraphQLMcp) runGoBeforeHooks(ctx context.Context, query string) (string, error) {
	for _, entry := range g.goBeforeHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(g.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, query)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("before_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return "", &gqlclient.Error{
				Kind: gqlclient.KindValidation,
				Err:  fmt.Errorf("query rejected by hook %s: %w", entry.Name, err),
			}
		}
		query = modified
	}
	return query, nil
}

// runGoAfterHooks runs Go-interface AfterQuery hooks in middleware chain.
// Each hook must return valid JSON.
func (g *GraphQLMcp) runGoAfterHooks(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	for _, entry := range g.goAfterHooks {
		timeout := entry.Timeout
		if timeout == 0 {
			timeout = time.Duration(g.config.DefaultHookTimeoutSeconds) * time.Second
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)

		modified, err := entry.Hook.Run(hookCtx, data)
		cancel()
		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("after_query hook error: hook timed out (name: %s, timeout: %s)", entry.Name, timeout)
			}
			return nil, &gqlclient.Error{
				Kind: gqlclient.KindValidation,
				Err:  fmt.Errorf("result rejected by hook %s: %w", entry.Name, err),
			}
		}
		if !json.Valid(modified) {
			return nil, fmt.Errorf("after_query hook error: hook %s returned invalid JSON", entry.Name)
		}
		data = modified
	}
	return data, nil
}

// queryError converts err into a Result, records it and returns.
func (g *GraphQLMcp) queryError(op string, startTime time.Time, err error) *Result {
	g.metrics.Observe(op, err, time.Since(startTime))
	return &Result{Error: g.errorMessage(op, err)}
}

// truncateIfNeeded replaces an oversized result (in characters) with a
// truncated preview in Error. Returns the encoded size in bytes.
func (g *GraphQLMcp) truncateIfNeeded(result *Result) int {
	jsonBytes, err := encodeJSON(result)
	if err != nil {
		result.Fields = nil
		result.Error = "failed to encode result: " + err.Error()
		return 0
	}
	if utf8.RuneCount(jsonBytes) <= g.config.Query.MaxResultLength {
		return len(jsonBytes)
	}
	result.Fields = nil
	result.Error = truncateRunes(jsonBytes, g.config.Query.MaxResultLength) + truncatedSuffix
	return len(jsonBytes)
}

func truncateRunes(b []byte, n int) string {
	runes := []rune(string(b))
	return string(runes[:n])
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
