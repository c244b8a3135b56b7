package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"huddle/models"
	"huddle/realtime"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print channel or message changes as they happen",
		Description: `Subscribes to the channel list, or to the messages of one channel
when --channel is given, and prints what the feed renders.

The channel list is printed in full on every change. Messages are printed
once each as they are appended.

Returns each change as a JSON object on a single line. Use a tool like jq to
process the output.

Prints all other log messages to stderr.`,
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:    "channel",
				Aliases: []string{"c"},
				Usage:   "Id of the channel whose messages to watch",
				EnvVars: []string{"HUDDLE_CHANNEL"},
			},
			&cli.BoolFlag{
				Name:  "retry",
				Usage: "Resubscribe with exponential backoff when the server drops the feed",
			},
		),
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the JSON lines
			log.SetOutput(os.Stderr)

			feed := models.ChannelsFeed()
			if channelID := ctx.String("channel"); channelID != "" {
				feed = models.MessagesFeed(channelID)
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			manager := realtime.NewManager(remoteSource(ctx))
			defer manager.Close()

			dropped := make(chan error, 1)
			activate := func() error {
				_, err := manager.Activate(sigCtx, feed, printEvents, realtime.WithErrorHandler(func(err error) {
					select {
					case dropped <- err:
					default:
					}
				}))
				if errors.Is(err, models.ErrInvalidFeed) {
					return backoff.Permanent(err)
				}
				return err
			}

			retry := func() error {
				return backoff.RetryNotify(activate, backoff.WithContext(backoff.NewExponentialBackOff(), sigCtx),
					func(err error, wait time.Duration) {
						log.Warnf("Could not subscribe to %s, retrying in %s: %v", feed, wait, err)
					})
			}

			if ctx.Bool("retry") {
				if err := retry(); err != nil {
					return err
				}
			} else if err := activate(); err != nil {
				return err
			}

			log.Infof("Watching %s", feed)

			for {
				select {
				case <-sigCtx.Done():
					log.Info("Stopping subscription")
					return nil
				case err := <-dropped:
					if !ctx.Bool("retry") {
						return err
					}
					log.Warnf("Lost %s: %v", feed, err)
					if err := retry(); err != nil {
						return err
					}
				}
			}
		},
	}
}

func printEvents(events []models.ChangeEvent) {
	for _, event := range events {
		// Print as single JSON string on a single line
		data, err := json.Marshal(event)
		if err == nil {
			fmt.Println(string(data))
		}
	}
}
