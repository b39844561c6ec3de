package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/georgepadayatti/pdfflatten/config"
	"github.com/georgepadayatti/pdfflatten/flatten"
	"github.com/georgepadayatti/pdfflatten/signatures"
)

// FlattenOptions contains options for the flatten command.
type FlattenOptions struct {
	ConfigFile   string
	FontFile     string
	SignatureDir string
	Verify       bool
}

// FlattenCommand implements the 'flatten' command.
func FlattenCommand(args []string) {
	flattenFlags := flag.NewFlagSet("flatten", flag.ExitOnError)

	var opts FlattenOptions

	flattenFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	flattenFlags.StringVar(&opts.FontFile, "font", "", "TrueType font for typed signatures (overrides the configuration)")
	flattenFlags.StringVar(&opts.SignatureDir, "signatures", "", "Directory of saved signatures (overrides the configuration)")
	flattenFlags.BoolVar(&opts.Verify, "verify", false, "Validate the output before writing it")

	flattenFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s flatten [options] <input.pdf> <annotations.json> <output.pdf>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Burn text and signature annotations into the pages of a PDF.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Arguments:")
		fmt.Fprintln(stdout, "  input.pdf         PDF file to annotate")
		fmt.Fprintln(stdout, "  annotations.json  JSON array of annotations, or - for standard input")
		fmt.Fprintln(stdout, "  output.pdf        Output file for the flattened PDF")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		flattenFlags.SetOutput(stdout)
		flattenFlags.PrintDefaults()
	}

	if err := flattenFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	if len(flattenFlags.Args()) < 3 {
		flattenFlags.Usage()
		osExit(1)
		return
	}

	cfg, logger, err := loadConfig(opts.ConfigFile)
	if err != nil {
		fail(err)
		return
	}
	if err := flattenFile(context.Background(), cfg, logger, &opts, flattenFlags.Arg(0), flattenFlags.Arg(1), flattenFlags.Arg(2)); err != nil {
		fail(err)
	}
}

func flattenFile(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, opts *FlattenOptions, inputPath, annotationsPath, outputPath string) error {
	src, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}

	var raw []byte
	if annotationsPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(annotationsPath)
	}
	if err != nil {
		return fmt.Errorf("failed to read annotations: %w", err)
	}
	anns, err := flatten.DecodeAnnotations(raw)
	if err != nil {
		return err
	}

	fo := cfg.Flatten.Options()
	if opts.FontFile != "" {
		fo.FontFile = opts.FontFile
	}
	if opts.Verify {
		fo.VerifyOutput = true
	}

	sigDir := cfg.Server.SignatureDir
	if opts.SignatureDir != "" {
		sigDir = opts.SignatureDir
	}
	// A missing directory means no saved signatures; do not create one.
	var source flatten.SignatureSource
	if info, err := os.Stat(sigDir); err == nil && info.IsDir() {
		store, err := signatures.NewStore(sigDir)
		if err != nil {
			return err
		}
		source = store
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("signature directory: %w", err)
	}

	res, err := flatten.New(fo, source, logger).Assemble(ctx, src, anns)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, res.Output, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	for _, w := range res.Warnings {
		fmt.Fprintf(stderr, "Warning: %v\n", w)
	}
	fmt.Fprintf(stdout, "Flattened %d annotation(s) onto %d page(s)\n", len(anns)-len(res.Warnings)-removed(anns), len(res.ChangedPages))
	fmt.Fprintf(stdout, "Output written to: %s\n", outputPath)
	return nil
}

func removed(anns []flatten.Annotation) int {
	n := 0
	for _, a := range anns {
		if a.Removed {
			n++
		}
	}
	return n
}
