package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
	"github.com/rickchristie/pggraphql-mcp/internal/configure"
	"github.com/rickchristie/pggraphql-mcp/internal/metrics"
)

const (
	defaultConfigPath = ".gogqlmcp/config.json"
	mcpEndpointPath   = "/mcp"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	checkServerSettings(serverConfig)

	// 2. Resolve endpoint
	serverConfig.Endpoint = resolveEndpoint(serverConfig.Endpoint)
	if needsPassword(serverConfig.Endpoint) && serverConfig.Server.Transport != "stdio" && isTTY(os.Stdin.Fd()) {
		serverConfig.Endpoint = withPassword(serverConfig.Endpoint, promptPassword("Password: "))
	}

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create the engine
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []gqlmcp.Option{gqlmcp.WithMetrics(metrics.New(reg))}
	if len(serverConfig.ServerHooks.BeforeQuery) > 0 || len(serverConfig.ServerHooks.AfterQuery) > 0 {
		opts = append(opts, gqlmcp.WithServerHooks(serverConfig.ServerHooks))
	}
	g, err := gqlmcp.New(ctx, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create GraphQL client: %w", err)
	}
	defer g.Close()

	// 5. Probe the endpoint. The server may come up later, so failure is
	// only a warning.
	logger.Info().Str("endpoint", redactEndpoint(g.Endpoint())).Msg("probing GraphQL endpoint")
	if err := g.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("GraphQL endpoint probe failed, serving anyway")
	} else {
		logger.Info().Msg("GraphQL endpoint probe successful")
	}

	// 6. Create MCP server with initialize lifecycle logging
	mcpServer := newMCPServer(g, logger)

	if serverConfig.Server.Transport == "stdio" {
		logger.Info().Msg("starting gogqlmcp server on stdio")
		return server.ServeStdio(mcpServer)
	}

	// 7. Start HTTP server with optional health check and metrics
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpEndpointPath),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	// Start() does not register the handler when a custom *http.Server is
	// provided, so the mux gets it here.
	registerRoutes(mux, serverConfig.Server, streamableServer, reg)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting gogqlmcp server")
	return streamableServer.Start(addr)
}

func newMCPServer(g *gqlmcp.GraphQLMcp, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gogqlmcp", version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	gqlmcp.RegisterMCPTools(mcpServer, g)
	return mcpServer
}

// registerRoutes mounts the MCP handler plus the optional health check and
// metrics endpoints on mux.
func registerRoutes(mux *http.ServeMux, settings gqlmcp.ServerSettings, mcpHandler http.Handler, gatherer prometheus.Gatherer) {
	// Health check endpoint (process liveness only, not endpoint reachability)
	if settings.HealthCheckEnabled {
		mux.HandleFunc(settings.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	if settings.MetricsEnabled {
		mux.Handle(settings.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.Handle(mcpEndpointPath, mcpHandler)
}

// checkServerSettings panics on settings that cannot be served.
func checkServerSettings(config *gqlmcp.ServerConfig) {
	switch config.Server.Transport {
	case "", "http":
		config.Server.Transport = "http"
		if config.Server.Port <= 0 {
			panic("gogqlmcp: server.port must be > 0")
		}
		if config.Server.HealthCheckEnabled && config.Server.HealthCheckPath == "" {
			panic("gogqlmcp: health_check_path must be set when health_check_enabled is true")
		}
		if config.Server.MetricsEnabled && config.Server.MetricsPath == "" {
			panic("gogqlmcp: metrics_path must be set when metrics_enabled is true")
		}
		for _, p := range []string{config.Server.HealthCheckPath, config.Server.MetricsPath} {
			if p == mcpEndpointPath {
				panic(fmt.Sprintf("gogqlmcp: %s is reserved for the MCP endpoint", mcpEndpointPath))
			}
		}
		if config.Server.HealthCheckEnabled && config.Server.MetricsEnabled &&
			config.Server.HealthCheckPath == config.Server.MetricsPath {
			panic(fmt.Sprintf("gogqlmcp: health_check_path and metrics_path are both %s", config.Server.MetricsPath))
		}
	case "stdio":
		// stdout carries the protocol.
		if config.Logging.Output == "stdout" {
			panic("gogqlmcp: logging.output cannot be stdout with the stdio transport")
		}
	default:
		panic(fmt.Sprintf("gogqlmcp: server.transport must be http or stdio, got %q", config.Server.Transport))
	}
}

// loadServerConfig reads GOGQLMCP_CONFIG_PATH, or the default path. A missing
// default file yields an empty config, which New fills with defaults.
func loadServerConfig() (*gqlmcp.ServerConfig, error) {
	configPath := os.Getenv("GOGQLMCP_CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath
	}

	var config gqlmcp.ServerConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			config.Server.Port = 8080
			return &config, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := configure.Unmarshal(configPath, data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return &config, nil
}

// resolveEndpoint applies GRAPHQL_ENDPOINT, then the configured endpoint,
// then the default.
func resolveEndpoint(configured string) string {
	if env := strings.TrimSpace(os.Getenv("GRAPHQL_ENDPOINT")); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return gqlmcp.DefaultEndpoint
}

// needsPassword reports whether endpoint is a postgres URL with a user but no
// password.
func needsPassword(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return !ok
}

func withPassword(endpoint, password string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.User == nil || password == "" {
		return endpoint
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String()
}

// redactEndpoint hides a postgres password before the endpoint is logged.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<unparseable endpoint>"
	}
	return u.Redacted()
}

func setupLogger(config gqlmcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
