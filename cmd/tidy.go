package cmd

import (
	"fmt"
	"huddle/db"
	"time"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing messages that are old.

		Remove messages older than the retention period from the database.
		Channels are kept. Run it while the server is stopped; live
		subscribers are not told about removed messages.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "retention",
				Value:   90 * 24 * time.Hour,
				Usage:   "Remove messages older than this",
				EnvVars: []string{"HUDDLE_RETENTION"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)

			removed, err := db.Tidy(ctx.Context, database, ctx.Duration("retention"))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d messages\n", removed)
			return nil
		},
	}
}
