// Package configure implements the interactive configuration wizard and the
// config file codec shared by the CLI commands.
package configure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
)

// Run runs the interactive configuration wizard.
// Reads existing config (if any), prompts for each field,
// writes updated config to the given path.
func Run(configPath string) error {
	return run(configPath, os.Stdin, os.Stderr)
}

func run(configPath string, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	cfg, isNew := loadExisting(configPath)
	if isNew {
		applyDefaults(cfg)
	}

	p := &prompter{
		scanner: scanner,
		output:  output,
		isNew:   isNew,
	}

	fmt.Fprintf(output, "gogqlmcp configuration wizard\n")
	fmt.Fprintf(output, "Config file: %s\n\n", configPath)

	fmt.Fprintf(output, "=== Endpoint ===\n")
	cfg.Endpoint = p.promptEndpoint(cfg.Endpoint)

	fmt.Fprintf(output, "\n=== Transport ===\n")
	cfg.Transport.TimeoutSeconds = p.promptPositiveInt("transport.timeout_seconds", cfg.Transport.TimeoutSeconds, "seconds, must be > 0")
	cfg.Transport.MaxConcurrentRequests = p.promptPositiveInt("transport.max_concurrent_requests", cfg.Transport.MaxConcurrentRequests, "must be > 0")

	fmt.Fprintf(output, "\n=== Server ===\n")
	cfg.Server.Transport = p.promptEnum("server.transport", cfg.Server.Transport, serverTransports)
	cfg.Server.Port = p.promptPositiveInt("server.port", cfg.Server.Port, "must be > 0, used by the http transport")
	cfg.Server.HealthCheckEnabled = p.promptBool("server.health_check_enabled", cfg.Server.HealthCheckEnabled)
	cfg.Server.HealthCheckPath = p.promptStringWithHint("server.health_check_path", cfg.Server.HealthCheckPath, "e.g. /healthz, required when health_check_enabled is true")
	cfg.Server.MetricsEnabled = p.promptBool("server.metrics_enabled", cfg.Server.MetricsEnabled)
	cfg.Server.MetricsPath = p.promptStringWithHint("server.metrics_path", cfg.Server.MetricsPath, "e.g. /metrics, required when metrics_enabled is true")

	fmt.Fprintf(output, "\n=== Logging ===\n")
	cfg.Logging.Level = p.promptEnum("logging.level", cfg.Logging.Level, logLevels)
	cfg.Logging.Format = p.promptEnum("logging.format", cfg.Logging.Format, logFormats)
	cfg.Logging.Output = p.promptStringWithHint("logging.output", cfg.Logging.Output, "stdout, stderr, or file path")

	fmt.Fprintf(output, "\n=== Query ===\n")
	cfg.Query.DefaultTimeoutSeconds = p.promptPositiveInt("query.default_timeout_seconds", cfg.Query.DefaultTimeoutSeconds, "seconds, must be > 0")
	cfg.Query.IntrospectionTimeoutSeconds = p.promptPositiveInt("query.introspection_timeout_seconds", cfg.Query.IntrospectionTimeoutSeconds, "seconds, must be > 0")
	cfg.Query.MaxQueryLength = p.promptPositiveInt("query.max_query_length", cfg.Query.MaxQueryLength, "bytes, must be > 0")
	cfg.Query.MaxResultLength = p.promptPositiveInt("query.max_result_length", cfg.Query.MaxResultLength, "characters, must be > 0")
	cfg.Query.DefaultPageSize = p.promptPositiveInt("query.default_page_size", cfg.Query.DefaultPageSize, "collection page size, must be > 0")

	fmt.Fprintf(output, "\n=== Protection ===\n")
	cfg.Protection.AllowMutations = p.promptBool("protection.allow_mutations", cfg.Protection.AllowMutations)
	cfg.Protection.MaxDepth = p.promptNonNegativeInt("protection.max_depth", cfg.Protection.MaxDepth, "selection depth limit, 0 = unlimited")

	fmt.Fprintf(output, "\n=== Hooks ===\n")
	cfg.DefaultHookTimeoutSeconds = p.promptNonNegativeInt("default_hook_timeout_seconds", cfg.DefaultHookTimeoutSeconds, "seconds, must be > 0 when hooks are configured")

	fmt.Fprintf(output, "\n=== Timeout Rules ===\n")
	cfg.Query.TimeoutRules = p.promptTimeoutRules(cfg.Query.TimeoutRules)

	fmt.Fprintf(output, "\n=== Error Prompts ===\n")
	cfg.ErrorPrompts = p.promptErrorPrompts(cfg.ErrorPrompts)

	fmt.Fprintf(output, "\n=== Sanitization Rules ===\n")
	cfg.Sanitization = p.promptSanitizationRules(cfg.Sanitization)

	fmt.Fprintf(output, "\n=== Server Hooks: Before Query ===\n")
	cfg.ServerHooks.BeforeQuery = p.promptHookEntries("server_hooks.before_query", cfg.ServerHooks.BeforeQuery)

	fmt.Fprintf(output, "\n=== Server Hooks: After Query ===\n")
	cfg.ServerHooks.AfterQuery = p.promptHookEntries("server_hooks.after_query", cfg.ServerHooks.AfterQuery)

	if err := writeConfig(configPath, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(output, "\nConfiguration saved to %s\n", configPath)
	return nil
}

// IsYAML reports whether the config path is read and written as YAML.
func IsYAML(configPath string) bool {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Unmarshal decodes config file contents, as YAML or JSON depending on the
// path's extension.
func Unmarshal(configPath string, data []byte, cfg *gqlmcp.ServerConfig) error {
	if IsYAML(configPath) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// Marshal encodes cfg in the format matching configPath.
func Marshal(configPath string, cfg *gqlmcp.ServerConfig) ([]byte, error) {
	if IsYAML(configPath) {
		return yaml.Marshal(cfg)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func loadExisting(configPath string) (*gqlmcp.ServerConfig, bool) {
	cfg := &gqlmcp.ServerConfig{}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, true
	}
	// Start with whatever was parseable.
	_ = Unmarshal(configPath, data, cfg)
	return cfg, false
}

// applyDefaults sets sensible default values for a new configuration.
func applyDefaults(cfg *gqlmcp.ServerConfig) {
	cfg.Endpoint = gqlmcp.DefaultEndpoint
	cfg.Transport.TimeoutSeconds = 30
	cfg.Transport.MaxConcurrentRequests = 10
	cfg.Server.Transport = "http"
	cfg.Server.Port = 8080
	cfg.Server.MetricsPath = "/metrics"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"
	cfg.Query.DefaultTimeoutSeconds = 30
	cfg.Query.IntrospectionTimeoutSeconds = 30
	cfg.Query.MaxQueryLength = 100000
	cfg.Query.MaxResultLength = 100000
	cfg.Query.DefaultPageSize = 10
	cfg.DefaultHookTimeoutSeconds = 10
}

var (
	serverTransports = []string{"http", "stdio"}
	logLevels        = []string{"debug", "info", "warn", "error"}
	logFormats       = []string{"json", "text"}
	// Empty kind matches every error class.
	errorKinds = []string{"", "network", "http", "decode", "graphql", "validation", "database"}
)

func writeConfig(configPath string, cfg *gqlmcp.ServerConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := Marshal(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", configPath, err)
	}
	return nil
}

// prompter handles reading user input and displaying prompts.
type prompter struct {
	scanner *bufio.Scanner
	output  io.Writer
	isNew   bool
}

func (p *prompter) readLine() string {
	if p.scanner.Scan() {
		return strings.TrimSpace(p.scanner.Text())
	}
	return ""
}

func (p *prompter) valueLabel() string {
	if p.isNew {
		return "default"
	}
	return "current"
}

func (p *prompter) promptStringWithHint(field string, current string, hint string) string {
	fmt.Fprintf(p.output, "%s [%s] (%s: %q): ", field, hint, p.valueLabel(), current)
	input := p.readLine()
	if input == "" {
		return current
	}
	return input
}

// promptEndpoint accepts http(s) URLs and postgres connection URLs.
func (p *prompter) promptEndpoint(current string) string {
	for {
		fmt.Fprintf(p.output, "endpoint [http(s) GraphQL URL or postgres:// connection string] (%s: %q): ", p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		if err := ValidateEndpoint(input); err != nil {
			fmt.Fprintf(p.output, "  %v, try again.\n", err)
			continue
		}
		return input
	}
}

// ValidateEndpoint checks that endpoint parses as a URL with a supported
// scheme.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %v", endpoint, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}
		return nil
	case "postgres", "postgresql":
		return nil
	default:
		return fmt.Errorf("invalid endpoint %q: scheme must be http, https, postgres or postgresql", endpoint)
	}
}

func (p *prompter) promptPositiveInt(field string, current int, hint string) int {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %d): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val <= 0 {
			fmt.Fprintf(p.output, "  Value must be > 0, try again.\n")
			continue
		}
		return val
	}
}

func (p *prompter) promptNonNegativeInt(field string, current int, hint string) int {
	for {
		fmt.Fprintf(p.output, "%s [%s] (%s: %d): ", field, hint, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val < 0 {
			fmt.Fprintf(p.output, "  Value must be >= 0, try again.\n")
			continue
		}
		return val
	}
}

func (p *prompter) promptBool(field string, current bool) bool {
	for {
		fmt.Fprintf(p.output, "%s (%s: %v): ", field, p.valueLabel(), current)
		input := p.readLine()
		if input == "" {
			return current
		}
		switch strings.ToLower(input) {
		case "true", "t", "yes", "y", "1":
			return true
		case "false", "f", "no", "n", "0":
			return false
		default:
			fmt.Fprintf(p.output, "  Invalid value %q, use true/false/yes/no, try again.\n", input)
		}
	}
}

func (p *prompter) promptEnum(field string, current string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "%s (%s: %q, options: %s): ", field, p.valueLabel(), current, strings.Join(allowed, ", "))
		input := p.readLine()
		if input == "" {
			return current
		}
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, must be one of: %s\n", input, strings.Join(allowed, ", "))
	}
}

// Array field editors

func (p *prompter) promptTimeoutRules(current []gqlmcp.TimeoutRule) []gqlmcp.TimeoutRule {
	return editList(p, "timeout rule", current,
		func(r gqlmcp.TimeoutRule) string {
			return fmt.Sprintf("pattern=%q timeout_seconds=%d", r.Pattern, r.TimeoutSeconds)
		},
		func() gqlmcp.TimeoutRule {
			return gqlmcp.TimeoutRule{
				Pattern:        p.promptNewRegexField("pattern"),
				TimeoutSeconds: p.promptNewPositiveIntField("timeout_seconds"),
			}
		})
}

func (p *prompter) promptErrorPrompts(current []gqlmcp.ErrorPromptRule) []gqlmcp.ErrorPromptRule {
	return editList(p, "error prompt", current,
		func(r gqlmcp.ErrorPromptRule) string {
			return fmt.Sprintf("pattern=%q kind=%q message=%q", r.Pattern, r.Kind, r.Message)
		},
		func() gqlmcp.ErrorPromptRule {
			return gqlmcp.ErrorPromptRule{
				Pattern: p.promptNewRegexField("pattern"),
				Kind:    p.promptNewEnumField("kind", errorKinds),
				Message: p.promptNewField("message"),
			}
		})
}

func (p *prompter) promptSanitizationRules(current []gqlmcp.SanitizationRule) []gqlmcp.SanitizationRule {
	return editList(p, "sanitization rule", current,
		func(r gqlmcp.SanitizationRule) string {
			return fmt.Sprintf("pattern=%q replacement=%q description=%q", r.Pattern, r.Replacement, r.Description)
		},
		func() gqlmcp.SanitizationRule {
			return gqlmcp.SanitizationRule{
				Pattern:     p.promptNewRegexField("pattern"),
				Replacement: p.promptNewField("replacement"),
				Description: p.promptNewField("description"),
			}
		})
}

func (p *prompter) promptHookEntries(label string, current []gqlmcp.HookEntry) []gqlmcp.HookEntry {
	return editList(p, label, current,
		func(e gqlmcp.HookEntry) string {
			return fmt.Sprintf("pattern=%q command=%q args=%q timeout_seconds=%d", e.Pattern, e.Command, e.Args, e.TimeoutSeconds)
		},
		func() gqlmcp.HookEntry {
			pattern := p.promptNewRegexField("pattern")
			command := p.promptNewField("command")
			var args []string
			if argsStr := p.promptNewField("args (comma-separated)"); argsStr != "" {
				for _, a := range strings.Split(argsStr, ",") {
					args = append(args, strings.TrimSpace(a))
				}
			}
			return gqlmcp.HookEntry{
				Pattern:        pattern,
				Command:        command,
				Args:           args,
				TimeoutSeconds: p.promptNewNonNegativeIntField("timeout_seconds"),
			}
		})
}

// editList runs the add/remove/continue loop shared by the array editors.
func editList[T any](p *prompter, label string, items []T, show func(T) string, add func() T) []T {
	for {
		if len(items) == 0 {
			fmt.Fprintf(p.output, "  (no entries)\n")
		}
		for i, item := range items {
			fmt.Fprintf(p.output, "  [%d] %s\n", i, show(item))
		}
		fmt.Fprintf(p.output, "[a]dd, [r]emove, [c]ontinue? ")
		switch strings.ToLower(p.readLine()) {
		case "a":
			items = append(items, add())
		case "r":
			items = removeByIndex(p, label, items)
		case "c", "":
			return items
		default:
			fmt.Fprintf(p.output, "  Unknown choice, try again.\n")
		}
	}
}

func (p *prompter) promptNewField(name string) string {
	fmt.Fprintf(p.output, "  %s: ", name)
	return p.readLine()
}

func (p *prompter) promptNewEnumField(name string, allowed []string) string {
	for {
		fmt.Fprintf(p.output, "  %s (one of: %s; empty = any): ", name, strings.Join(allowed[1:], ", "))
		input := p.readLine()
		for _, v := range allowed {
			if input == v {
				return input
			}
		}
		fmt.Fprintf(p.output, "  Invalid value %q, try again.\n", input)
	}
}

func (p *prompter) promptNewRegexField(name string) string {
	for {
		fmt.Fprintf(p.output, "  %s (regex): ", name)
		input := p.readLine()
		if input == "" {
			return ""
		}
		if _, err := regexp.Compile(input); err != nil {
			fmt.Fprintf(p.output, "  Invalid regex %q: %v, try again.\n", input, err)
			continue
		}
		return input
	}
}

func (p *prompter) promptNewPositiveIntField(name string) int {
	for {
		fmt.Fprintf(p.output, "  %s (must be > 0): ", name)
		input := p.readLine()
		if input == "" {
			fmt.Fprintf(p.output, "  Value is required and must be > 0, try again.\n")
			continue
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val <= 0 {
			fmt.Fprintf(p.output, "  Value must be > 0, try again.\n")
			continue
		}
		return val
	}
}

// promptNewNonNegativeIntField returns 0 on empty input.
func (p *prompter) promptNewNonNegativeIntField(name string) int {
	for {
		fmt.Fprintf(p.output, "  %s (must be >= 0, 0 = default): ", name)
		input := p.readLine()
		if input == "" {
			return 0
		}
		val, err := strconv.Atoi(input)
		if err != nil {
			fmt.Fprintf(p.output, "  Invalid integer %q, try again.\n", input)
			continue
		}
		if val < 0 {
			fmt.Fprintf(p.output, "  Value must be >= 0, try again.\n")
			continue
		}
		return val
	}
}

func removeByIndex[T any](p *prompter, label string, items []T) []T {
	if len(items) == 0 {
		fmt.Fprintf(p.output, "  No %s entries to remove.\n", label)
		return items
	}
	fmt.Fprintf(p.output, "  Index to remove: ")
	input := p.readLine()
	idx, err := strconv.Atoi(input)
	if err != nil || idx < 0 || idx >= len(items) {
		fmt.Fprintf(p.output, "  Invalid index.\n")
		return items
	}
	return append(items[:idx], items[idx+1:]...)
}
