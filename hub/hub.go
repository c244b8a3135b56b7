package hub

import (
	"context"
	"errors"
	"fmt"
	"huddle/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	hubWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_hub_writes_total",
		Help: "Records committed through the hub",
	}, []string{"kind"})

	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_hub_subscribers",
		Help: "The current number of hub subscriptions",
	})
)

var (
	ErrClosed           = errors.New("hub closed")
	ErrUnsupportedOrder = errors.New("unsupported order")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrInvalidRecord    = errors.New("invalid record")
)

// Store is the persistence the hub commits to and snapshots from
type Store interface {
	CreateChannel(ctx context.Context, channel models.Channel) error
	CreateMessage(ctx context.Context, msg models.Message) error
	ListChannels(ctx context.Context) ([]models.Channel, error)
	ListMessages(ctx context.Context, channelID string) ([]models.Message, error)
	ChannelExists(ctx context.Context, channelID string) (bool, error)
	LatestTimestamp(ctx context.Context) (int64, error)
}

// Hub is an in-process realtime data source. Writes are committed to the
// store and fanned out to subscribers of the collection in commit order.
type Hub struct {
	store Store
	now   func() time.Time

	// mu is held across commit and fan-out so every subscriber sees
	// changes in commit order and snapshots never miss a commit
	mu          sync.Mutex
	subscribers map[string]map[uint64]*subscriber
	nextID      uint64
	lastTime    int64
	closed      bool
}

func New(ctx context.Context, store Store) (*Hub, error) {
	latest, err := store.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read latest timestamp: %w", err)
	}

	return &Hub{
		store:       store,
		now:         time.Now,
		subscribers: make(map[string]map[uint64]*subscriber),
		lastTime:    latest,
	}, nil
}

// Subscribe opens a subscription on a collection. The first batch carries the
// current contents of the collection as Added changes.
func (h *Hub) Subscribe(ctx context.Context, query models.Query, onBatch func(models.Batch), onError func(error)) (func(), error) {
	feed, err := models.ParseCollection(query.Collection)
	if err != nil {
		return nil, err
	}
	if query.OrderBy != "" && query.OrderBy != models.OrderByCreatedAt {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOrder, query.OrderBy)
	}
	if query.Direction != "" && query.Direction != models.Asc && query.Direction != models.Desc {
		return nil, fmt.Errorf("%w: direction %q", ErrUnsupportedOrder, query.Direction)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	records, err := h.snapshot(ctx, feed)
	if err != nil {
		return nil, err
	}

	h.nextID++
	id := h.nextID
	sub := newSubscriber(feed, query.Direction == models.Desc, records, onBatch, onError)

	collection := feed.Collection()
	if h.subscribers[collection] == nil {
		h.subscribers[collection] = make(map[uint64]*subscriber)
	}
	h.subscribers[collection][id] = sub
	hubSubscribers.Inc()

	log.WithFields(log.Fields{
		"collection": collection,
		"subscriber": id,
		"records":    len(records),
	}).Info("Added hub subscriber")

	go sub.run()

	return func() { h.unsubscribe(collection, id, sub) }, nil
}

// Write commits a record to a collection and returns its id. The hub assigns
// the id when the record has none and always assigns the creation time.
func (h *Hub) Write(ctx context.Context, collection string, record models.Record) (string, error) {
	feed, err := models.ParseCollection(collection)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", ErrClosed
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = h.timestamp()

	switch feed.Kind {
	case models.Channels:
		channel := models.ChannelFromRecord(record)
		if channel.Name == "" {
			return "", fmt.Errorf("%w: channel name is required", ErrInvalidRecord)
		}
		if err := h.store.CreateChannel(ctx, channel); err != nil {
			return "", err
		}
		record = channel.Record()
	case models.Messages:
		exists, err := h.store.ChannelExists(ctx, feed.ScopeID)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, feed.ScopeID)
		}
		msg := models.MessageFromRecord(feed.ScopeID, record)
		if msg.Text == "" {
			return "", fmt.Errorf("%w: message text is required", ErrInvalidRecord)
		}
		if err := h.store.CreateMessage(ctx, msg); err != nil {
			return "", err
		}
		record = msg.Record()
	}

	hubWrites.WithLabelValues(string(feed.Kind)).Inc()

	change := models.ChangeEvent{Type: models.Added, Record: record, Feed: feed}
	for _, sub := range h.subscribers[feed.Collection()] {
		sub.push(change)
	}

	return record.ID, nil
}

// Close drops every subscription with ErrClosed and rejects further calls
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	log.Info("Shutting down hub")
	for collection, subs := range h.subscribers {
		for id, sub := range subs {
			sub.stop(ErrClosed)
			delete(subs, id)
			hubSubscribers.Dec()
		}
		delete(h.subscribers, collection)
	}
}

func (h *Hub) unsubscribe(collection string, id uint64, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.stop(nil)

	subs := h.subscribers[collection]
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subscribers, collection)
	}
	hubSubscribers.Dec()

	log.WithFields(log.Fields{
		"collection": collection,
		"subscriber": id,
	}).Info("Removed hub subscriber")
}

func (h *Hub) snapshot(ctx context.Context, feed models.Feed) ([]models.Record, error) {
	if feed.Kind == models.Channels {
		channels, err := h.store.ListChannels(ctx)
		if err != nil {
			return nil, err
		}
		records := make([]models.Record, 0, len(channels))
		for _, c := range channels {
			records = append(records, c.Record())
		}
		return records, nil
	}

	msgs, err := h.store.ListMessages(ctx, feed.ScopeID)
	if err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, m.Record())
	}
	return records, nil
}

// timestamp returns a commit time that never goes backwards
func (h *Hub) timestamp() int64 {
	ts := h.now().UnixMilli()
	if ts <= h.lastTime {
		ts = h.lastTime + 1
	}
	h.lastTime = ts
	return ts
}
