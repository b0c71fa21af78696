package gqlmcp

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultEndpoint is used when neither GRAPHQL_ENDPOINT nor the config file
// names an endpoint.
const DefaultEndpoint = "http://127.0.0.1:3001/rpc/graphql"

// Config is the base configuration used by library mode via New().
type Config struct {
	// Endpoint is an http(s) GraphQL URL, or a postgres:// connection string
	// to call graphql.resolve directly.
	Endpoint     string             `json:"endpoint" yaml:"endpoint"`
	Transport    TransportConfig    `json:"transport" yaml:"transport"`
	Protection   ProtectionConfig   `json:"protection" yaml:"protection"`
	Query        QueryConfig        `json:"query" yaml:"query"`
	ErrorPrompts []ErrorPromptRule  `json:"error_prompts" yaml:"error_prompts"`
	Sanitization []SanitizationRule `json:"sanitization" yaml:"sanitization"`

	DefaultHookTimeoutSeconds int `json:"default_hook_timeout_seconds" yaml:"default_hook_timeout_seconds"`

	// Library mode: Go function hooks (not serializable).
	// Mutually exclusive with ServerConfig.ServerHooks.
	BeforeQueryHooks []BeforeQueryHookEntry `json:"-" yaml:"-"`
	AfterQueryHooks  []AfterQueryHookEntry  `json:"-" yaml:"-"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config  `yaml:",inline"`
	Server      ServerSettings    `json:"server" yaml:"server"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	ServerHooks ServerHooksConfig `json:"server_hooks" yaml:"server_hooks"`
}

// TransportConfig holds settings for the GraphQL transport.
type TransportConfig struct {
	TimeoutSeconds        int `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxConcurrentRequests int `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
}

// ServerSettings holds MCP server settings for CLI mode.
type ServerSettings struct {
	Transport          string `json:"transport" yaml:"transport"` // http, stdio
	Port               int    `json:"port" yaml:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled" yaml:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path" yaml:"health_check_path"`
	MetricsEnabled     bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPath        string `json:"metrics_path" yaml:"metrics_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
	Output string `json:"output" yaml:"output"` // stderr, stdout, or file path
}

// ProtectionConfig controls which GraphQL operations are allowed.
type ProtectionConfig struct {
	// AllowMutations permits mutation and subscription operations. It also
	// turns off read-only sessions on the postgres transport.
	AllowMutations bool `json:"allow_mutations" yaml:"allow_mutations"`
	// MaxDepth caps selection nesting in graphql_query. 0 disables the cap.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int           `json:"default_timeout_seconds" yaml:"default_timeout_seconds"`
	IntrospectionTimeoutSeconds int           `json:"introspection_timeout_seconds" yaml:"introspection_timeout_seconds"`
	MaxQueryLength              int           `json:"max_query_length" yaml:"max_query_length"`
	MaxResultLength             int           `json:"max_result_length" yaml:"max_result_length"`
	DefaultPageSize             int           `json:"default_page_size" yaml:"default_page_size"`
	TimeoutRules                []TimeoutRule `json:"timeout_rules" yaml:"timeout_rules"`
}

// TimeoutRule maps a GraphQL query pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern" yaml:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
// Kind optionally restricts the rule to one error class: network, http,
// decode, graphql, validation or database.
type ErrorPromptRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Kind    string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// SanitizationRule defines a regex-based value sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern" yaml:"pattern"`
	Replacement string `json:"replacement" yaml:"replacement"`
	Description string `json:"description" yaml:"description"`
}

// ServerHooksConfig holds command-based hook configuration for CLI mode.
type ServerHooksConfig struct {
	BeforeQuery []HookEntry `json:"before_query" yaml:"before_query"`
	AfterQuery  []HookEntry `json:"after_query" yaml:"after_query"`
}

// HookEntry defines a single command-based hook. Pattern is matched against
// the GraphQL document (before_query) or the data payload's JSON
// (after_query).
type HookEntry struct {
	Pattern        string   `json:"pattern" yaml:"pattern"`
	Command        string   `json:"command" yaml:"command"`
	Args           []string `json:"args" yaml:"args"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// BeforeQueryHook can inspect and rewrite a graphql_query document before it
// is checked and sent. A non-nil error rejects the query.
type BeforeQueryHook interface {
	Run(ctx context.Context, query string) (string, error)
}

// AfterQueryHook can inspect and rewrite the data payload of a graphql_query
// response. The returned value must be valid JSON.
type AfterQueryHook interface {
	Run(ctx context.Context, data json.RawMessage) (json.RawMessage, error)
}

// BeforeQueryHookEntry wraps a BeforeQueryHook with metadata.
type BeforeQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    BeforeQueryHook
}

// AfterQueryHookEntry wraps an AfterQueryHook with metadata.
type AfterQueryHookEntry struct {
	Name    string
	Timeout time.Duration
	Hook    AfterQueryHook
}
