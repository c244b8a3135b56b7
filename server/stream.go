package server

import (
	"context"
	"huddle/models"
	"huddle/realtime"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 64 * 1024
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
	wsPingInterval    = 30 * time.Second
	wsBatchBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsWriteBufferSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler serves one subscription per websocket connection. The client
// sends a StreamRequest, the server answers with a ready or error frame and
// then pushes batch frames until either side closes. Closing the connection
// releases the subscription.
func StreamHandler(source realtime.Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("Websocket upgrade failed: %v", err)
			return
		}
		serveStream(r.Context(), conn, source)
	})
}

func serveStream(ctx context.Context, conn *websocket.Conn, source realtime.Source) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

	var req models.StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Warnf("Could not read stream request: %v", err)
		return
	}

	batches := make(chan models.Batch, wsBatchBuffer)
	failed := make(chan error, 1)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe, err := source.Subscribe(ctx, req.Query,
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
		log.WithFields(log.Fields{
			"collection": req.Collection,
			"error":      err,
		}).Warn("Rejected stream subscription")
		writeFrame(conn, models.StreamFrame{Type: models.FrameError, Error: err.Error()})
		return
	}
	defer unsubscribe()

	if err := writeFrame(conn, models.StreamFrame{Type: models.FrameReady}); err != nil {
		return
	}

	log.WithFields(log.Fields{
		"collection": req.Collection,
		"remote":     conn.RemoteAddr().String(),
	}).Info("Opened websocket stream")

	// Reading keeps control frames flowing and tells us when the client leaves
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("Unexpected websocket close: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-overflow:
			writeFrame(conn, models.StreamFrame{Type: models.FrameError, Error: "client too slow"})
			return
		case err := <-failed:
			writeFrame(conn, models.StreamFrame{Type: models.FrameError, Error: err.Error()})
			return
		case batch := <-batches:
			if err := writeFrame(conn, models.StreamFrame{Type: models.FrameBatch, Batch: &batch}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				log.Warnf("Ping failed, closing stream: %v", err)
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, frame models.StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
