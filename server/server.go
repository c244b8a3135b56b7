package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"huddle/hub"
	"huddle/models"
	"huddle/realtime"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// Reader lists the current contents of collections for the REST API
type Reader interface {
	ListChannels(ctx context.Context) ([]models.Channel, error)
	ListMessages(ctx context.Context, channelID string) ([]models.Message, error)
}

type ServerConfig struct {
	// Source commits writes and serves the SSE streams
	Source realtime.Source

	// Reader serves the list endpoints
	Reader Reader

	// Origins allowed by CORS, comma separated
	AllowOrigins string
}

const (
	sseBufferSize    = 64
	sseAliveInterval = 5 * time.Second
)

// Returns a fiber.App instance serving the chat REST API, SSE streams and metrics
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		// Channel ids reach handlers decoded
		UnescapePath: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		// Streams must reach the client unbuffered
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/sse")
		},
	}))

	if config.AllowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins: config.AllowOrigins,
			AllowHeaders: "Cache-Control, Content-Type",
		}))
	}

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/channels", func(c *fiber.Ctx) error {
		channels, err := config.Reader.ListChannels(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(channels)
	})

	app.Post("/channels", func(c *fiber.Ctx) error {
		return write(c, config.Source, models.ChannelsCollection)
	})

	app.Get("/channels/sse", func(c *fiber.Ctx) error {
		return stream(c, config.Source, models.ChannelsFeed())
	})

	app.Get("/channels/:id/messages", func(c *fiber.Ctx) error {
		messages, err := config.Reader.ListMessages(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(messages)
	})

	app.Post("/channels/:id/messages", func(c *fiber.Ctx) error {
		return write(c, config.Source, models.MessagesCollection(c.Params("id")))
	})

	app.Get("/channels/:id/messages/sse", func(c *fiber.Ctx) error {
		return stream(c, config.Source, models.MessagesFeed(utils.CopyString(c.Params("id"))))
	})

	return app
}

func write(c *fiber.Ctx, source realtime.Source, collection string) error {
	fields := map[string]any{}
	if err := c.BodyParser(&fields); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	id, err := source.Write(c.UserContext(), collection, models.Record{Fields: fields})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(models.WriteResponse{ID: id})
}

// stream subscribes before responding so establishment failures surface as
// an HTTP error instead of an empty stream
func stream(c *fiber.Ctx, source realtime.Source, feed models.Feed) error {
	if err := feed.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	batches := make(chan models.Batch, sseBufferSize)
	failed := make(chan error, 1)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe, err := source.Subscribe(context.Background(), models.FeedQuery(feed),
		func(batch models.Batch) {
			select {
			case batches <- batch:
			default:
				overflowOnce.Do(func() { close(overflow) })
			}
		},
		func(err error) {
			failed <- err
		},
	)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	key := feed.String()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		alive := time.NewTicker(sseAliveInterval)
		defer alive.Stop()

		log.WithFields(log.Fields{
			"feed": key,
		}).Info("Opened SSE stream")

		for {
			select {
			case <-alive.C:
				if _, err := fmt.Fprintf(w, "event: ping\ndata: \n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Infof("Closing SSE stream for %s: %v", key, err)
					return
				}

			case <-overflow:
				log.Warnf("SSE client for %s fell behind, closing stream", key)
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", "client too slow")
				w.Flush()
				return

			case err := <-failed:
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", err)
				w.Flush()
				return

			case batch := <-batches:
				data, err := json.Marshal(batch)
				if err != nil {
					log.Errorf("Error marshalling batch for %s: %v", key, err)
					continue
				}
				if _, err := fmt.Fprintf(w, "event: batch\ndata: %s\n\n", data); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					log.Infof("Closing SSE stream for %s: %v", key, err)
					return
				}
			}
		}
	}))

	return nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.Is(err, hub.ErrInvalidRecord),
		errors.Is(err, hub.ErrUnsupportedOrder),
		errors.Is(err, models.ErrUnknownCollection),
		errors.Is(err, models.ErrInvalidFeed):
		code = fiber.StatusBadRequest
	case errors.Is(err, hub.ErrChannelNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, hub.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}

	if code >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"error": err,
		}).Error("Request failed")
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
