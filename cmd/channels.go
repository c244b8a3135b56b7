package cmd

import (
	"context"
	"errors"
	"fmt"
	"huddle/realtime"
	"time"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func channelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "channels",
		Usage: "List and create channels on a running server",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Print the current channel list",
				Flags: clientFlags(),
				Action: func(ctx *cli.Context) error {
					channels, err := fetchChannels(ctx)
					if err != nil {
						return err
					}
					for _, channel := range channels {
						fmt.Printf("%s\t%s\t%s\n", channel.ID, channel.Name, time.UnixMilli(channel.CreatedAt).Format(time.RFC3339))
					}
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "Create a channel",
				ArgsUsage: "[name]",
				Flags:     clientFlags(),
				Action: func(ctx *cli.Context) error {
					user, err := sessionUser(ctx)
					if err != nil {
						return err
					}

					name := ctx.Args().First()
					if name == "" {
						name, err = prompt.New().Ask("Channel name:").Input("general")
						if err != nil {
							return err
						}
					}

					s := realtime.NewSession(remoteSource(ctx), realtime.SessionConfig{User: user})
					defer s.Close()

					id, err := s.CreateChannel(ctx.Context, name)
					if err != nil {
						return err
					}
					fmt.Println(id)
					return nil
				},
			},
		},
	}
}

// fetchChannels waits for the first render of the channel list
func fetchChannels(ctx *cli.Context) ([]realtime.ChannelItem, error) {
	rendered := make(chan []realtime.ChannelItem, 1)
	s := realtime.NewSession(remoteSource(ctx), realtime.SessionConfig{
		OnChannels: func(items []realtime.ChannelItem) {
			select {
			case rendered <- items:
			default:
			}
		},
	})
	defer s.Close()

	if err := s.Open(ctx.Context); err != nil {
		return nil, err
	}

	timeout, cancel := context.WithTimeout(ctx.Context, 15*time.Second)
	defer cancel()

	select {
	case items := <-rendered:
		return items, nil
	case <-timeout.Done():
		return nil, errors.New("timed out waiting for the channel list")
	}
}

// chooseChannel asks the user to pick one of the server's channels
func chooseChannel(ctx *cli.Context) (string, error) {
	channels, err := fetchChannels(ctx)
	if err != nil {
		return "", err
	}
	if len(channels) == 0 {
		return "", errors.New("the server has no channels, create one first")
	}

	name, err := prompt.New().Ask("Channel:").Choose(lo.Map(channels, func(c realtime.ChannelItem, _ int) string {
		return c.Name
	}))
	if err != nil {
		return "", err
	}

	channel, _ := lo.Find(channels, func(c realtime.ChannelItem) bool { return c.Name == name })
	return channel.ID, nil
}
