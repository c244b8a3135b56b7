package cmd

import (
	"context"
	"errors"
	"fmt"
	"huddle/db"
	"huddle/hub"
	"huddle/server"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the huddle chat API",
		Description: `Starts the huddle HTTP server and websocket stream.

Runs the database migrations, then serves the REST API, SSE streams and
metrics on the main port and the websocket stream used by huddle clients on
the stream port. Every committed channel and message is pushed to the
subscribers of its collection.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname to listen on",
				EnvVars: []string{"HUDDLE_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port of the REST API",
				EnvVars: []string{"HUDDLE_PORT"},
			},
			&cli.IntFlag{
				Name:    "stream-port",
				Value:   3001,
				Usage:   "Port of the websocket stream",
				EnvVars: []string{"HUDDLE_STREAM_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Usage:   "Comma separated origins allowed by CORS, empty disables CORS",
				EnvVars: []string{"HUDDLE_ALLOW_ORIGINS"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			log.Infof("Database configured: %s", database)

			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			store, err := db.Open(database)
			if err != nil {
				return err
			}
			defer store.Close()

			h, err := hub.New(ctx.Context, store)
			if err != nil {
				return err
			}

			app := server.Server(&server.ServerConfig{
				Source:       h,
				Reader:       store,
				AllowOrigins: ctx.String("allow-origins"),
			})

			mux := http.NewServeMux()
			mux.Handle("/ws", server.StreamHandler(h))
			streamServer := &http.Server{
				Addr:              fmt.Sprintf("%s:%d", ctx.String("hostname"), ctx.Int("stream-port")),
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gCtx := errgroup.WithContext(sigCtx)

			g.Go(func() error {
				addr := fmt.Sprintf("%s:%d", ctx.String("hostname"), ctx.Int("port"))
				log.Infof("Starting server on %s", addr)
				return app.Listen(addr)
			})

			g.Go(func() error {
				log.Infof("Starting stream on %s", streamServer.Addr)
				if err := streamServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gCtx.Done()
				log.Info("Gracefully shutting down...")

				// Dropping the subscribers first lets open streams finish
				h.Close()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := streamServer.Shutdown(shutdownCtx); err != nil {
					log.Warnf("Stream shutdown: %v", err)
				}
				return app.ShutdownWithTimeout(30 * time.Second)
			})

			if err := g.Wait(); err != nil {
				return err
			}

			log.Info("Done!")
			return nil
		},
	}
}
