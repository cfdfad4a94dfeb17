package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/nhle/bcfeed/internal/model"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{})

	app := newApp(runner)

	if err := app.Run(ctx, os.Args); err != nil {
		runner.logger.Error("bcfeed failed", "err", err)
		stop()
		os.Exit(1)
	}
}

// newApp builds the root command around runner.
func newApp(runner *Runner) *cli.Command {
	return &cli.Command{
		Name:    "bcfeed",
		Usage:   "Collect Bandcamp release notifications from a mailbox into a feed",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   model.DefaultConfigPath(),
				Sources: cli.EnvVars("BCFEED_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the configuration",
			},
		},
		Before:   runner.Load,
		Commands: runner.register(),
	}
}
