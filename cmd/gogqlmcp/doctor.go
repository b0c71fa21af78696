package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"

	gqlmcp "github.com/rickchristie/pggraphql-mcp"
	"github.com/rickchristie/pggraphql-mcp/internal/configure"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	fs.Parse(os.Args[2:])

	useColor := isTTY(os.Stderr.Fd())
	return doctor(os.Stderr, useColor, *configPath)
}

func doctor(w io.Writer, useColor bool, configPath string) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "gogqlmcp %s\n\n", version)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'gogqlmcp doctor' again.")
		return nil
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*gqlmcp.ServerConfig, bool) {
	allPassed := true
	check := func(pass bool, msg string) {
		printCheck(w, useColor, pass, msg)
		if !pass {
			allPassed = false
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		check(false, fmt.Sprintf("Config file readable (%s)", configPath))
		return nil, false
	}
	check(true, fmt.Sprintf("Config file readable (%s)", configPath))

	format := "JSON"
	if configure.IsYAML(configPath) {
		format = "YAML"
	}
	var config gqlmcp.ServerConfig
	if err := configure.Unmarshal(configPath, data, &config); err != nil {
		check(false, fmt.Sprintf("Config file is valid %s: %v", format, err))
		return nil, false
	}
	check(true, fmt.Sprintf("Config file is valid %s", format))

	endpoint := resolveEndpoint(config.Endpoint)
	if err := configure.ValidateEndpoint(endpoint); err != nil {
		check(false, fmt.Sprintf("endpoint is a valid URL: %v", err))
	} else {
		check(true, fmt.Sprintf("endpoint is a valid URL (%s)", redactEndpoint(endpoint)))
	}

	switch config.Server.Transport {
	case "", "http":
		if config.Server.Port <= 0 {
			check(false, "server.port is > 0")
		} else {
			check(true, fmt.Sprintf("server.port is > 0 (%d)", config.Server.Port))
		}
		if config.Server.HealthCheckEnabled {
			if config.Server.HealthCheckPath == "" {
				check(false, "health_check_path is set (required when health_check_enabled)")
			} else {
				check(true, fmt.Sprintf("health_check_path is set (%s)", config.Server.HealthCheckPath))
			}
		}
		if config.Server.MetricsEnabled {
			if config.Server.MetricsPath == "" {
				check(false, "metrics_path is set (required when metrics_enabled)")
			} else {
				check(true, fmt.Sprintf("metrics_path is set (%s)", config.Server.MetricsPath))
			}
		}
		if config.Server.HealthCheckEnabled && config.Server.MetricsEnabled && config.Server.HealthCheckPath == config.Server.MetricsPath {
			check(false, "health_check_path and metrics_path differ")
		}
	case "stdio":
		check(config.Logging.Output != "stdout", "logging.output is not stdout (stdio transport)")
	default:
		check(false, fmt.Sprintf("server.transport is http or stdio (got %q)", config.Server.Transport))
	}

	regexOK := true
	checkRegex := func(field string, i int, pattern string) {
		if _, err := regexp.Compile(pattern); err != nil {
			check(false, fmt.Sprintf("%s[%d] regex compiles: %v", field, i, err))
			regexOK = false
		}
	}
	for i, rule := range config.ErrorPrompts {
		checkRegex("error_prompts", i, rule.Pattern)
	}
	for i, rule := range config.Sanitization {
		checkRegex("sanitization", i, rule.Pattern)
	}
	for i, rule := range config.Query.TimeoutRules {
		checkRegex("timeout_rules", i, rule.Pattern)
	}
	for i, hook := range config.ServerHooks.BeforeQuery {
		checkRegex("server_hooks.before_query", i, hook.Pattern)
	}
	for i, hook := range config.ServerHooks.AfterQuery {
		checkRegex("server_hooks.after_query", i, hook.Pattern)
	}
	if regexOK {
		check(true, "All regex patterns compile")
	}

	checkHookCommand := func(field string, i int, command string) {
		if _, err := exec.LookPath(command); err != nil {
			check(false, fmt.Sprintf("%s[%d] command found (%s): %v", field, i, command, err))
			return
		}
		check(true, fmt.Sprintf("%s[%d] command found (%s)", field, i, command))
	}
	for i, hook := range config.ServerHooks.BeforeQuery {
		checkHookCommand("server_hooks.before_query", i, hook.Command)
	}
	for i, hook := range config.ServerHooks.AfterQuery {
		checkHookCommand("server_hooks.after_query", i, hook.Command)
	}
	if len(config.ServerHooks.BeforeQuery)+len(config.ServerHooks.AfterQuery) > 0 {
		check(config.DefaultHookTimeoutSeconds > 0, "default_hook_timeout_seconds is > 0 (required when server_hooks are set)")
	}

	return &config, allPassed
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
	} else {
		fmt.Fprintf(w, "  %s %s\n", mark, msg)
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *gqlmcp.ServerConfig) {
	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}
	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	if config.Server.Transport == "stdio" {
		subheading("Any MCP client (stdio)")
		fmt.Fprint(w, `  {
    "mcpServers": {
      "graphql": {
        "command": "gogqlmcp",
        "args": ["serve"]
      }
    }
  }
`)
		return
	}

	url := fmt.Sprintf("http://localhost:%d%s", config.Server.Port, mcpEndpointPath)

	subheading("Claude Code")
	fmt.Fprint(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport http graphql %s\n\n", url)
	fmt.Fprint(w, "  Or add to .mcp.json (project scope):\n\n")
	printSnippet(w, "mcpServers", `"type": "http", "url": "%s"`, url)

	subheading("Copilot CLI (~/.copilot/mcp-config.json)")
	printSnippet(w, "mcpServers", `"type": "http", "url": "%s"`, url)

	subheading("Gemini CLI (~/.gemini/settings.json)")
	printSnippet(w, "mcpServers", `"httpUrl": "%s"`, url)

	subheading("OpenCode (opencode.json)")
	printSnippet(w, "mcp", `"type": "remote", "url": "%s"`, url)

	subheading("Cursor (.cursor/mcp.json)")
	printSnippet(w, "mcpServers", `"url": "%s"`, url)

	subheading("Windsurf (~/.codeium/windsurf/mcp_config.json)")
	printSnippet(w, "mcpServers", `"serverUrl": "%s"`, url)
}

// printSnippet prints a config block registering the server as "graphql".
func printSnippet(w io.Writer, key, bodyFormat, url string) {
	fmt.Fprintf(w, "  {\n    %q: {\n      \"graphql\": { %s }\n    }\n  }\n\n", key, fmt.Sprintf(bodyFormat, url))
}
