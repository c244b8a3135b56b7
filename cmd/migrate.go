package cmd

import (
	"context"
	"fmt"
	"huddle/config"
	"huddle/db"
	"huddle/models"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "seed",
				Usage:   "Path to a TOML file of channels to create after migrating",
				EnvVars: []string{"HUDDLE_SEED"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)

			if err := db.Migrate(database); err != nil {
				return err
			}

			if seed := ctx.String("seed"); seed != "" {
				return seedChannels(ctx.Context, database, seed)
			}
			return nil
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			return db.Rollback(database)
		},
	}
}

func seedChannels(ctx context.Context, database, path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load seed: %w", err)
	}

	store, err := db.Open(database)
	if err != nil {
		return err
	}
	defer store.Close()

	existing, err := store.ListChannels(ctx)
	if err != nil {
		return err
	}
	names := make(map[string]bool, len(existing))
	for _, channel := range existing {
		names[channel.Name] = true
	}

	for _, channel := range cfg.Channels {
		if names[channel.Name] {
			log.Infof("Channel %s already exists, skipping", channel.Name)
			continue
		}

		err := store.CreateChannel(ctx, models.Channel{
			ID:        uuid.NewString(),
			Name:      channel.Name,
			CreatedBy: channel.CreatedBy,
			CreatedAt: time.Now().UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("could not seed channel %s: %w", channel.Name, err)
		}
	}

	return nil
}
