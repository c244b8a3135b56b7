package remote

import (
	"context"
	"errors"
	"fmt"
	"huddle/models"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_remote_connection_attempts_total",
		Help: "The total number of stream connection attempts",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huddle_remote_connection_errors_total",
		Help: "The total number of stream connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_remote_current_connections",
		Help: "The current number of open stream connections",
	})
)

const (
	wsReadBufferSize  = 64 * 1024
	wsWriteBufferSize = 1024
	wsReadTimeout     = 90 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsHandshake       = 15 * time.Second
	writeTimeout      = 10 * time.Second
)

var ErrRejected = errors.New("subscription rejected")

// Config holds the endpoints of a running huddle server
type Config struct {
	// BaseURL of the REST API, e.g. http://localhost:3000
	BaseURL string

	// StreamURL of the websocket stream, e.g. ws://localhost:3001/ws
	StreamURL string

	UserAgent string
}

// Source is a realtime data source backed by a remote huddle server
type Source struct {
	config Config
	dialer websocket.Dialer
}

func New(config Config) *Source {
	return &Source{
		config: config,
		dialer: websocket.Dialer{
			ReadBufferSize:   wsReadBufferSize,
			WriteBufferSize:  wsWriteBufferSize,
			HandshakeTimeout: wsHandshake,
			NetDialContext: (&net.Dialer{
				Timeout:   wsHandshake,
				KeepAlive: 45 * time.Second,
			}).DialContext,
		},
	}
}

// Subscribe opens a websocket stream for the query. It returns once the
// server has accepted or rejected the subscription.
func (s *Source) Subscribe(ctx context.Context, query models.Query, onBatch func(models.Batch), onError func(error)) (func(), error) {
	headers := http.Header{}
	if s.config.UserAgent != "" {
		headers.Set("User-Agent", s.config.UserAgent)
	}

	wsConnectionAttempts.Inc()

	conn, _, err := s.dialer.DialContext(ctx, s.config.StreamURL, headers)
	if err != nil {
		wsConnectionErrors.Inc()
		return nil, fmt.Errorf("dial %s: %w", s.config.StreamURL, err)
	}

	if err := s.handshake(conn, query); err != nil {
		wsConnectionErrors.Inc()
		conn.Close()
		return nil, err
	}

	wsCurrentConnections.Inc()

	sub := &subscription{conn: conn, onBatch: onBatch, onError: onError}
	go sub.read()

	log.WithFields(log.Fields{
		"collection": query.Collection,
		"stream":     s.config.StreamURL,
	}).Debug("Subscribed to remote stream")

	return sub.close, nil
}

func (s *Source) handshake(conn *websocket.Conn, query models.Query) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(models.StreamRequest{Query: query}); err != nil {
		return fmt.Errorf("send stream request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(wsHandshake))
	var frame models.StreamFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("read stream reply: %w", err)
	}

	switch frame.Type {
	case models.FrameReady:
		return nil
	case models.FrameError:
		return fmt.Errorf("%w: %s", ErrRejected, frame.Error)
	default:
		return fmt.Errorf("unexpected frame %q before ready", frame.Type)
	}
}

type subscription struct {
	conn    *websocket.Conn
	onBatch func(models.Batch)
	onError func(error)

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) read() {
	defer s.release()

	s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	s.conn.SetPingHandler(func(appData string) error {
		s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteTimeout))
	})

	for {
		var frame models.StreamFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !s.isClosed() {
				wsConnectionErrors.Inc()
				s.fail(fmt.Errorf("stream read: %w", err))
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch frame.Type {
		case models.FrameBatch:
			if frame.Batch != nil && !s.isClosed() {
				s.onBatch(*frame.Batch)
			}
		case models.FrameError:
			s.fail(errors.New(frame.Error))
			return
		}
	}
}

func (s *subscription) fail(err error) {
	if s.isClosed() || s.onError == nil {
		return
	}
	s.onError(err)
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close is the unsubscribe function handed to callers
func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	s.release()
}

func (s *subscription) release() {
	s.once.Do(func() {
		s.conn.Close()
		wsCurrentConnections.Dec()
	})
}

// Write posts a record to the server's REST API
func (s *Source) Write(ctx context.Context, collection string, record models.Record) (string, error) {
	feed, err := models.ParseCollection(collection)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	timeout := writeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return "", context.DeadlineExceeded
	}

	a := fiber.Post(strings.TrimSuffix(s.config.BaseURL, "/") + "/" + feed.Collection())
	if s.config.UserAgent != "" {
		a.UserAgent(s.config.UserAgent)
	}
	a.Timeout(timeout)
	a.JSON(record.Fields)

	type result struct {
		res  models.WriteResponse
		code int
		body []byte
		errs []error
	}

	// fiber's Agent takes no context
	done := make(chan result, 1)
	go func() {
		var r result
		r.code, r.body, r.errs = a.Struct(&r.res)
		done <- r
	}()

	var r result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r = <-done:
	}

	if len(r.errs) > 0 {
		return "", fmt.Errorf("post %s: %w", collection, errors.Join(r.errs...))
	}
	if r.code != fiber.StatusCreated {
		return "", fmt.Errorf("post %s: status %d: %s", collection, r.code, strings.TrimSpace(string(r.body)))
	}

	return r.res.ID, nil
}
