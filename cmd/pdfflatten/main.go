// Command pdfflatten burns text and signature annotations into PDF pages.
//
// Usage:
//
//	pdfflatten <command> [options] <args>
//
// Commands:
//
//	flatten  Apply an annotation file to a PDF
//	serve    Run the HTTP editor backend
//	check    Validate a PDF and show its document information
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Flatten annotations exported by the editor
//	pdfflatten flatten input.pdf annotations.json output.pdf
//
//	# Run the editor backend
//	pdfflatten serve -config pdfflatten.yaml
//
//	# Validate the result
//	pdfflatten check output.pdf
package main

import (
	"os"

	"github.com/georgepadayatti/pdfflatten/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pdfflatten
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
