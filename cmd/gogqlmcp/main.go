package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// version is reported by doctor and the MCP initialize handshake.
const version = "0.1.0"

func main() {
	// Variables already in the environment win over .env.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "configure":
		err = runConfigure()
	case "doctor":
		err = runDoctor()
	case "walk":
		err = runWalk()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("gogqlmcp: pg_graphql MCP Server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gogqlmcp serve       Start the MCP server")
	fmt.Println("  gogqlmcp configure   Run interactive configuration wizard")
	fmt.Println("  gogqlmcp doctor      Check the configuration and print agent snippets")
	fmt.Println("  gogqlmcp walk        Page through a collection from the command line")
	fmt.Println("  gogqlmcp --help      Show this help message")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  GOGQLMCP_CONFIG_PATH  Config file path (default .gogqlmcp/config.json, .yaml/.yml read as YAML)")
	fmt.Println("  GRAPHQL_ENDPOINT      Overrides the configured endpoint")
}
