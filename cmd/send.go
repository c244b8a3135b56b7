package cmd

import (
	"fmt"
	"huddle/realtime"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a message to a channel",
		Description: `Sends a message to a channel on a running server.

Prompts for the channel and the text when they are not given as flags.`,
		Flags: append(clientFlags(),
			&cli.StringFlag{
				Name:    "channel",
				Aliases: []string{"c"},
				Usage:   "Id of the channel to send to",
				EnvVars: []string{"HUDDLE_CHANNEL"},
			},
			&cli.StringFlag{
				Name:    "text",
				Aliases: []string{"t"},
				Usage:   "Message text",
			},
		),
		Action: func(ctx *cli.Context) error {
			user, err := sessionUser(ctx)
			if err != nil {
				return err
			}

			channelID := ctx.String("channel")
			if channelID == "" {
				if channelID, err = chooseChannel(ctx); err != nil {
					return err
				}
			}

			text := ctx.String("text")
			if text == "" {
				if text, err = prompt.New().Ask("Message:").Input(""); err != nil {
					return err
				}
			}

			s := realtime.NewSession(remoteSource(ctx), realtime.SessionConfig{User: user})
			defer s.Close()

			if err := s.SelectChannel(ctx.Context, channelID); err != nil {
				return err
			}

			id, err := s.SendMessage(ctx.Context, text)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}
