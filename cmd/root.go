package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:    "huddle",
		Version: "0.1.0",
		Usage:   "A realtime chat server and client",
		Description: `Huddle keeps chat channels and their messages in an SQLite
		database and pushes every change to subscribed clients as it is
		committed.

		The serve command runs the server. The channels, send and watch
		commands talk to a running server over its REST API and websocket
		stream.

		Flags can generally be set via environment variables, e.g.:

		--database => HUDDLE_DATABASE=huddle.db
		--port => HUDDLE_PORT=3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"HUDDLE_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			channelsCmd(),
			sendCmd(),
			watchCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   "huddle.db",
		Usage:   "SQLite database file location",
		EnvVars: []string{"HUDDLE_DATABASE"},
	}
}
