package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgepadayatti/pdfflatten/flatten"
	"github.com/georgepadayatti/pdfflatten/server"
	"github.com/georgepadayatti/pdfflatten/signatures"
)

// ServeOptions contains options for the serve command.
type ServeOptions struct {
	ConfigFile string
	Addr       string
}

// ServeCommand implements the 'serve' command.
func ServeCommand(args []string) {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)

	var opts ServeOptions

	serveFlags.StringVar(&opts.ConfigFile, "config", "", "Configuration file (YAML)")
	serveFlags.StringVar(&opts.Addr, "addr", "", "Listen address (overrides the configuration)")

	serveFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s serve [options]\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Run the HTTP backend of the PDF editor.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		serveFlags.SetOutput(stdout)
		serveFlags.PrintDefaults()
	}

	if err := serveFlags.Parse(args[2:]); err != nil {
		fmt.Fprintf(stderr, "Error parsing flags: %v\n", err)
		osExit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, &opts); err != nil {
		fail(err)
	}
}

func serve(ctx context.Context, opts *ServeOptions) error {
	cfg, logger, err := loadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}

	store, err := signatures.NewStore(cfg.Server.SignatureDir)
	if err != nil {
		return err
	}
	store.SetMaxPixels(cfg.Flatten.MaxDecodePixels)
	f := flatten.New(cfg.Flatten.Options(), store, logger)
	srv, err := server.New(*cfg.Server, f, store, logger)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}
