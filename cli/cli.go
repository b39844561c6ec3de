// Package cli provides the command-line interface for flattening
// annotations into PDF documents.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/georgepadayatti/pdfflatten/config"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "flatten":
		FlattenCommand(args)
	case "serve":
		ServeCommand(args)
	case "check":
		CheckCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Fprintf(stdout, "pdfflatten - burn text and signature annotations into PDF pages\n\n")
	fmt.Fprintf(stdout, "Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  flatten  Apply an annotation file to a PDF")
	fmt.Fprintln(stdout, "  serve    Run the HTTP editor backend")
	fmt.Fprintln(stdout, "  check    Validate a PDF and show its document information")
	fmt.Fprintln(stdout, "  version  Show version information")
	fmt.Fprintln(stdout, "  help     Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintf(stdout, "  %s flatten input.pdf annotations.json output.pdf\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s serve -config pdfflatten.yaml -addr :8080\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s check output.pdf\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "pdfflatten version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

// loadConfig reads the configuration file at path, or returns the
// defaults when path is empty, and builds the logger it describes.
func loadConfig(path string) (*config.AppConfig, *slog.Logger, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfigFromFile(path); err != nil {
			return nil, nil, err
		}
	}
	logger, err := cfg.Logging.NewLogger(stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func fail(err error) {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
