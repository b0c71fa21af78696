package gqlmcp

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/rickchristie/pggraphql-mcp/internal/errprompt"
	"github.com/rickchristie/pggraphql-mcp/internal/gqlclient"
	"github.com/rickchristie/pggraphql-mcp/internal/hooks"
	"github.com/rickchristie/pggraphql-mcp/internal/metrics"
	"github.com/rickchristie/pggraphql-mcp/internal/protection"
	"github.com/rickchristie/pggraphql-mcp/internal/querybuilder"
	"github.com/rickchristie/pggraphql-mcp/internal/sanitize"
	"github.com/rickchristie/pggraphql-mcp/internal/timeout"
)

// GraphQLMcp is the core engine behind the MCP tools. All exported methods
// are safe for concurrent use from multiple goroutines.
type GraphQLMcp struct {
	config     Config
	transport  gqlclient.Transport
	semaphore  chan struct{}
	protection *protection.Checker
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	metrics    *metrics.Recorder
	logger     zerolog.Logger

	cmdHooks      *hooks.Runner          // command-based hooks (CLI mode)
	goBeforeHooks []BeforeQueryHookEntry // Go function hooks (library mode)
	goAfterHooks  []AfterQueryHookEntry  // Go function hooks (library mode)
}

// Option is a functional option for New().
type Option func(*options)

type options struct {
	transport   gqlclient.Transport
	metrics     *metrics.Recorder
	serverHooks *ServerHooksConfig
}

// WithTransport replaces the transport built from Config.Endpoint. The
// engine takes ownership and closes it in Close.
func WithTransport(t gqlclient.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithMetrics records per-operation Prometheus metrics.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithServerHooks passes command-based hook configuration to GraphQLMcp.
// Mutually exclusive with Config.BeforeQueryHooks/AfterQueryHooks (Go hooks).
func WithServerHooks(h ServerHooksConfig) Option {
	return func(o *options) {
		o.serverHooks = &h
	}
}

// New creates a new GraphQLMcp instance.
// Panics on invalid config. Returns error only for runtime failures (e.g.,
// postgres pool creation).
func New(ctx context.Context, config Config, logger zerolog.Logger, opts ...Option) (*GraphQLMcp, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	// --- Apply defaults for zero values ---

	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Transport.TimeoutSeconds == 0 {
		config.Transport.TimeoutSeconds = int(gqlclient.DefaultTimeout / time.Second)
	}
	if config.Transport.MaxConcurrentRequests == 0 {
		config.Transport.MaxConcurrentRequests = 10
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = 30
	}
	if config.Query.IntrospectionTimeoutSeconds == 0 {
		config.Query.IntrospectionTimeoutSeconds = 30
	}
	if config.Query.MaxQueryLength == 0 {
		config.Query.MaxQueryLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.DefaultPageSize == 0 {
		config.Query.DefaultPageSize = querybuilder.DefaultPageSize
	}

	// --- Config validation (panics on invalid config) ---

	if o.transport == nil {
		u, err := url.Parse(config.Endpoint)
		if err != nil {
			panic(fmt.Sprintf("gqlmcp: invalid endpoint %q: %v", config.Endpoint, err))
		}
		switch u.Scheme {
		case "http", "https", "postgres", "postgresql":
		default:
			panic(fmt.Sprintf("gqlmcp: endpoint %q must use http, https, postgres or postgresql scheme", config.Endpoint))
		}
	}
	if config.Transport.TimeoutSeconds < 0 {
		panic("gqlmcp: transport.timeout_seconds must be > 0")
	}
	if config.Transport.MaxConcurrentRequests < 0 {
		panic("gqlmcp: transport.max_concurrent_requests must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds < 0 {
		panic("gqlmcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.IntrospectionTimeoutSeconds < 0 {
		panic("gqlmcp: query.introspection_timeout_seconds must be > 0")
	}
	if config.Query.MaxQueryLength < 0 {
		panic("gqlmcp: query.max_query_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("gqlmcp: query.max_result_length must be > 0")
	}
	if config.Query.DefaultPageSize < 0 {
		panic("gqlmcp: query.default_page_size must be > 0")
	}
	if config.Protection.MaxDepth < 0 {
		panic("gqlmcp: protection.max_depth must be >= 0")
	}

	// Go hooks and command hooks are mutually exclusive
	hasGoHooks := len(config.BeforeQueryHooks) > 0 || len(config.AfterQueryHooks) > 0
	hasCmdHooks := o.serverHooks != nil && (len(o.serverHooks.BeforeQuery) > 0 || len(o.serverHooks.AfterQuery) > 0)
	if hasGoHooks && hasCmdHooks {
		panic("gqlmcp: Go hooks (Config.BeforeQueryHooks/AfterQueryHooks) and command hooks (WithServerHooks) are mutually exclusive")
	}
	if (hasGoHooks || hasCmdHooks) && config.DefaultHookTimeoutSeconds <= 0 {
		panic("gqlmcp: default_hook_timeout_seconds must be > 0 when hooks are configured")
	}
	for _, entry := range config.BeforeQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("gqlmcp: before_query hook %q has negative timeout", entry.Name))
		}
	}
	for _, entry := range config.AfterQueryHooks {
		if entry.Timeout < 0 {
			panic(fmt.Sprintf("gqlmcp: after_query hook %q has negative timeout", entry.Name))
		}
	}
	if hasCmdHooks {
		for _, entry := range slices.Concat(o.serverHooks.BeforeQuery, o.serverHooks.AfterQuery) {
			if entry.TimeoutSeconds < 0 {
				panic(fmt.Sprintf("gqlmcp: server hook %q has negative timeout_seconds", entry.Command))
			}
		}
	}

	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("gqlmcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Initialize internal components ---

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic("gqlmcp: " + err.Error())
	}
	promptRules, err := mapErrorPromptRules(config.ErrorPrompts)
	if err != nil {
		panic("gqlmcp: " + err.Error())
	}
	matcher, err := errprompt.NewMatcher(promptRules)
	if err != nil {
		panic("gqlmcp: " + err.Error())
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr, err := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})
	if err != nil {
		panic("gqlmcp: " + err.Error())
	}

	var cmdHooks *hooks.Runner
	if hasCmdHooks {
		hookEntries := func(entries []HookEntry) []hooks.Entry {
			result := make([]hooks.Entry, len(entries))
			for i, e := range entries {
				result[i] = hooks.Entry{
					Pattern: e.Pattern,
					Command: e.Command,
					Args:    e.Args,
					Timeout: time.Duration(e.TimeoutSeconds) * time.Second,
				}
			}
			return result
		}
		cmdHooks, err = hooks.NewRunner(hooks.Config{
			DefaultTimeout: time.Duration(config.DefaultHookTimeoutSeconds) * time.Second,
			BeforeQuery:    hookEntries(o.serverHooks.BeforeQuery),
			AfterQuery:     hookEntries(o.serverHooks.AfterQuery),
		}, logger)
		if err != nil {
			panic("gqlmcp: " + err.Error())
		}
	}

	// --- Create transport ---

	transport := o.transport
	if transport == nil {
		transport, err = newTransport(ctx, config, logger)
		if err != nil {
			return nil, err
		}
	}

	return &GraphQLMcp{
		config:    config,
		transport: transport,
		semaphore: make(chan struct{}, config.Transport.MaxConcurrentRequests),
		protection: protection.NewChecker(protection.Config{
			AllowMutations: config.Protection.AllowMutations,
			MaxDepth:       config.Protection.MaxDepth,
		}),
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		metrics:    o.metrics,
		logger:     logger,

		cmdHooks:      cmdHooks,
		goBeforeHooks: config.BeforeQueryHooks,
		goAfterHooks:  config.AfterQueryHooks,
	}, nil
}

func newTransport(ctx context.Context, config Config, logger zerolog.Logger) (gqlclient.Transport, error) {
	if gqlclient.IsPostgresEndpoint(config.Endpoint) {
		t, err := gqlclient.NewPostgresTransport(ctx, config.Endpoint, !config.Protection.AllowMutations, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return gqlclient.NewHTTPClient(config.Endpoint, time.Duration(config.Transport.TimeoutSeconds)*time.Second, logger), nil
}

// Close releases the transport.
func (g *GraphQLMcp) Close() {
	g.transport.Close()
}

// Endpoint returns the endpoint the engine was configured with.
func (g *GraphQLMcp) Endpoint() string {
	return g.config.Endpoint
}

// Ping sends { __typename } to check that the endpoint answers GraphQL.
func (g *GraphQLMcp) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.config.Query.IntrospectionTimeoutSeconds)*time.Second)
	defer cancel()
	_, err := g.transport.Execute(ctx, gqlclient.Request{Query: "{ __typename }"})
	return err
}

// acquire takes a request slot, giving up when ctx is done.
func (g *GraphQLMcp) acquire(ctx context.Context) (func(), error) {
	select {
	case g.semaphore <- struct{}{}:
		return func() { <-g.semaphore }, nil
	case <-ctx.Done():
		return nil, &gqlclient.Error{
			Kind: gqlclient.KindNetwork,
			Err:  fmt.Errorf("failed to acquire request slot: all %d slots are in use, context cancelled while waiting: %w", cap(g.semaphore), ctx.Err()),
		}
	}
}

// execute runs one request within a request slot and the given timeout.
func (g *GraphQLMcp) execute(ctx context.Context, req gqlclient.Request, d time.Duration) (*gqlclient.Response, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	queryCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return g.transport.Execute(queryCtx, req)
}

// errorMessage renders err for the caller, appending matching error prompts.
func (g *GraphQLMcp) errorMessage(op string, err error) string {
	kind := gqlclient.KindOf(err)
	errMsg := err.Error()
	prompt := g.errPrompts.Match(kind, errMsg)
	patterns := g.errPrompts.MatchedPatterns(kind, errMsg)

	logEvent := g.logger.Error().Err(err).Str("operation", op)
	if kind != "" {
		logEvent = logEvent.Str("kind", string(kind))
	}
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("operation error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return errMsg
}

// mapSanitizationRules converts gqlmcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts gqlmcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) ([]errprompt.Rule, error) {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		kind := gqlclient.Kind(r.Kind)
		switch kind {
		case "", gqlclient.KindNetwork, gqlclient.KindHTTP, gqlclient.KindDecode,
			gqlclient.KindGraphQL, gqlclient.KindValidation, gqlclient.KindDatabase:
		default:
			return nil, fmt.Errorf("error_prompt with pattern %q has unknown kind %q", r.Pattern, r.Kind)
		}
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Kind:    kind,
			Message: r.Message,
		}
	}
	return result, nil
}
