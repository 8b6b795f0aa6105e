// Package cmd contains the command-line entry points.
//
// Following the pattern of standard Go server tools, all application logic
// lives here, leaving main.go as a minimal entry point.
package cmd

import (
	"fmt"
	"os"

	"ragserver/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. It routes subcommands and handles the
// flags that must work even when configuration is invalid.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return executeMigrate()
		case "serve":
			return executeServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Serving is the default behavior.
	return executeServe()
}

// loadConfig loads and validates configuration for commands that need it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// printVersionInfo displays version information.
func printVersionInfo() error {
	fmt.Printf("ragserver v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

// printHelp displays the help message.
func printHelp() {
	fmt.Println("ragserver - retrieval-augmented document chat service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ragserver              Start the HTTP server (default)")
	fmt.Println("  ragserver serve        Start the HTTP server")
	fmt.Println("  ragserver migrate      Run database migrations and exit")
	fmt.Println("  ragserver version      Show version information")
	fmt.Println("  ragserver help         Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from ./config.yaml or /etc/ragserver/config.yaml.")
	fmt.Println("Environment overrides:")
	fmt.Println("  RAGSERVER_LISTEN_ADDR         HTTP listen address")
	fmt.Println("  RAGSERVER_STORAGE_BACKEND     \"memory\" or \"postgres\"")
	fmt.Println("  DATABASE_URL                  PostgreSQL connection URL")
	fmt.Println("  RAGSERVER_EMBEDDING_PROVIDER  \"deterministic\", \"ollama\", or \"gemini\"")
	fmt.Println("  GEMINI_API_KEY                Required for the gemini provider")
	fmt.Println("  RAGSERVER_LOG_LEVEL           debug, info, warn, error")
}
