package main

import (
	"github.com/urfave/cli/v3"

	"github.com/nhle/bcfeed/internal/store"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed and sync API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address; overrides the configuration",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Start a sync as soon as the server is up",
			},
		},
		Action: r.Serve,
	}
}

func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Run one sync and print its progress",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Forget backlog progress and walk every folder from the newest message",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Messages scanned in the recent phase; overrides the configuration",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only print the summary",
			},
		},
		Action: r.Sync,
	}
}

func releasesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "releases",
		Aliases: []string{"ls"},
		Usage:   "List stored releases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "query",
				Usage: "Match uploader or release name",
			},
			&cli.StringFlag{
				Name:  "window",
				Usage: "Date window: week, month, 3months, year or all",
				Value: "all",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Release type: album or track",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "newest, oldest, uploader_az or uploader_za",
				Value: store.SortNewest,
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Page number",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Releases,
	}
}

func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarise the stored feed",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Stats,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Store the mailbox password in the system keyring",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Mailbox address; prefills the form",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "IMAP host; prefills the form",
			},
			&cli.BoolFlag{
				Name:  "password-stdin",
				Usage: "Read the password from standard input instead of the form",
			},
			&cli.BoolFlag{
				Name:  "accessible",
				Usage: "Prompt line by line instead of with a full-screen form",
			},
		},
		Action: r.Login,
	}
}
