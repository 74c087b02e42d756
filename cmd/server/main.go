// Package main implements the entry point for the research report server,
// which accepts report requests over HTTP, runs them against a Gemini
// research agent in the background and keeps the rendered reports in a
// per-subject knowledge base.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
)

// Version is the application version (set via ldflags).
var Version = "dev"

// Run parses args and executes the selected command until it returns or
// a termination signal arrives.
func Run(ctx context.Context, args []string, stdout io.Writer) error {
	app := kingpin.New("scry-research", "Asynchronous deep research report server.")
	app.Version(Version)
	app.DefaultEnvars()

	configPath := app.Flag("config", "Path to a YAML configuration file.").Short('c').String()

	serveCmd := app.Command("serve", "Run the HTTP server and report workers.").Default()

	tokenCmd := app.Command("token", "Mint an API token for an owner.")
	tokenOwner := tokenCmd.Arg("owner", "Owner id placed in the token subject.").Required().String()

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				switch cmdName {
				case tokenCmd.FullCommand():
					return runToken(ctx, *configPath, *tokenOwner, stdout)
				case serveCmd.FullCommand():
					return runServe(ctx, *configPath)
				default:
					return fmt.Errorf("unknown command %q", cmdName)
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func main() {
	if err := Run(context.Background(), os.Args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
