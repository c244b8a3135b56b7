package cmd

import (
	"errors"
	"huddle/realtime"
	"huddle/remote"

	"github.com/urfave/cli/v2"
)

// Flags shared by the commands that talk to a running server
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Value:   "http://localhost:3000",
			Usage:   "Base URL of the huddle REST API",
			EnvVars: []string{"HUDDLE_SERVER"},
		},
		&cli.StringFlag{
			Name:    "stream",
			Value:   "ws://localhost:3001/ws",
			Usage:   "URL of the huddle websocket stream",
			EnvVars: []string{"HUDDLE_STREAM"},
		},
		&cli.StringFlag{
			Name:    "user-id",
			Usage:   "Id of the user writing channels and messages",
			EnvVars: []string{"HUDDLE_USER_ID"},
		},
		&cli.StringFlag{
			Name:    "user-email",
			Usage:   "Email shown as the sender of messages",
			EnvVars: []string{"HUDDLE_USER_EMAIL"},
		},
	}
}

func remoteSource(ctx *cli.Context) *remote.Source {
	return remote.New(remote.Config{
		BaseURL:   ctx.String("server"),
		StreamURL: ctx.String("stream"),
		UserAgent: "huddle-cli/" + ctx.App.Version,
	})
}

func sessionUser(ctx *cli.Context) (realtime.User, error) {
	user := realtime.User{
		ID:    ctx.String("user-id"),
		Email: ctx.String("user-email"),
	}
	if user.ID == "" {
		return user, errors.New("please specify a user id with --user-id")
	}
	return user, nil
}
