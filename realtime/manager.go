package realtime

import (
	"context"
	"huddle/models"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Source is the realtime data source a Manager subscribes to.
//
// Subscribe opens a push subscription. onBatch receives the full current
// batch first and then every later change list, in commit order. onError is
// called at most once, after which onBatch is not called again. Neither
// callback may be invoked on the goroutine that called Subscribe. The
// returned function releases the subscription and is safe to call more than
// once.
//
// Write appends a record to a collection and returns its id.
type Source interface {
	Subscribe(ctx context.Context, query models.Query, onBatch func(models.Batch), onError func(error)) (func(), error)
	Write(ctx context.Context, collection string, record models.Record) (string, error)
}

// OnChange receives the events selected by the feed's rendering strategy
type OnChange func(events []models.ChangeEvent)

type activateOptions struct {
	onError func(error)
}

type ActivateOption func(*activateOptions)

// WithErrorHandler registers a handler called with a *ConnectionError when
// the data source drops an active subscription
func WithErrorHandler(fn func(error)) ActivateOption {
	return func(o *activateOptions) {
		o.onError = fn
	}
}

// Manager keeps at most one live subscription per feed kind.
//
// Callbacks run on the data source's delivery goroutine while the handle's
// delivery lock is held, so they must not call Activate or Deactivate
// synchronously.
type Manager struct {
	source Source

	// ops serializes Activate and Deactivate so a kind is never live twice
	ops sync.Mutex

	mu     sync.Mutex
	active map[models.FeedKind]*Handle
}

func NewManager(source Source) *Manager {
	return &Manager{
		source: source,
		active: make(map[models.FeedKind]*Handle),
	}
}

// Handle is an opaque token for one feed subscription
type Handle struct {
	id       string
	feed     models.Feed
	manager  *Manager
	strategy Strategy
	onChange OnChange
	onError  func(error)

	// deliver guards everything below and is held while callbacks run
	deliver     sync.Mutex
	live        bool
	registered  bool
	unsubscribe func()
	failure     error
}

func (h *Handle) ID() string {
	return h.id
}

func (h *Handle) Feed() models.Feed {
	return h.feed
}

// Active reports whether the handle still delivers events
func (h *Handle) Active() bool {
	h.deliver.Lock()
	defer h.deliver.Unlock()
	return h.live
}

// Activate subscribes to feed, first releasing any live subscription of the
// same kind. Establishment failures are returned as *ConnectionError and are
// not retried.
func (m *Manager) Activate(ctx context.Context, feed models.Feed, onChange OnChange, opts ...ActivateOption) (*Handle, error) {
	if err := feed.Validate(); err != nil {
		return nil, err
	}
	if onChange == nil {
		return nil, ErrNilCallback
	}

	var options activateOptions
	for _, opt := range opts {
		opt(&options)
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	if prev := m.current(feed.Kind); prev != nil {
		m.release(prev)
	}

	h := &Handle{
		id:       uuid.NewString(),
		feed:     feed,
		manager:  m,
		strategy: StrategyFor(feed.Kind),
		onChange: onChange,
		onError:  options.onError,
		live:     true,
	}

	kind := string(feed.Kind)
	activations.WithLabelValues(kind).Inc()

	unsubscribe, err := m.source.Subscribe(ctx, models.FeedQuery(feed), h.handleBatch, h.handleError)
	if err != nil {
		h.markDead()
		connectionErrors.WithLabelValues(kind).Inc()
		log.WithFields(log.Fields{
			"feed":  feed.String(),
			"error": err,
		}).Error("Could not establish subscription")
		return nil, &ConnectionError{Feed: feed, Err: err}
	}

	h.deliver.Lock()
	if !h.live {
		// The source dropped the subscription before Subscribe returned
		failure := h.failure
		h.deliver.Unlock()
		unsubscribe()
		if failure == nil {
			failure = ErrSubscriptionDropped
		}
		return nil, &ConnectionError{Feed: feed, Err: failure}
	}
	h.unsubscribe = unsubscribe
	h.registered = true
	m.mu.Lock()
	m.active[feed.Kind] = h
	m.mu.Unlock()
	activeSubscriptions.WithLabelValues(kind).Inc()
	h.deliver.Unlock()

	log.WithFields(log.Fields{
		"feed":   feed.String(),
		"handle": h.id,
	}).Debug("Activated feed")

	return h, nil
}

// Deactivate releases the handle's subscription. After it returns the
// handle's callback is never invoked again. Nil, foreign, superseded and
// already released handles are ignored.
func (m *Manager) Deactivate(h *Handle) {
	if h == nil || h.manager != m {
		return
	}

	m.ops.Lock()
	defer m.ops.Unlock()

	m.release(h)
}

// Current returns the live handle for a feed kind, or nil
func (m *Manager) Current(kind models.FeedKind) *Handle {
	return m.current(kind)
}

// Close deactivates every live subscription
func (m *Manager) Close() {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.active))
	for _, h := range m.active {
		handles = append(handles, h)
	}
	m.mu.Unlock()

	for _, h := range handles {
		m.release(h)
	}
}

func (m *Manager) current(kind models.FeedKind) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[kind]
}

func (m *Manager) forget(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[h.feed.Kind] == h {
		delete(m.active, h.feed.Kind)
	}
}

func (m *Manager) release(h *Handle) {
	m.forget(h)

	// Waits for an in-flight delivery to finish
	h.deliver.Lock()
	wasLive := h.live && h.registered
	h.live = false
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.deliver.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	if wasLive {
		activeSubscriptions.WithLabelValues(string(h.feed.Kind)).Dec()
		log.WithFields(log.Fields{
			"feed":   h.feed.String(),
			"handle": h.id,
		}).Debug("Deactivated feed")
	}
}

func (h *Handle) markDead() {
	h.deliver.Lock()
	h.live = false
	h.deliver.Unlock()
}

func (h *Handle) handleBatch(batch models.Batch) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	if !h.live {
		discardedBatches.WithLabelValues(string(h.feed.Kind)).Inc()
		return
	}

	events := h.strategy.Select(h.feed, batch)
	if events == nil {
		return
	}
	h.onChange(events)
}

func (h *Handle) handleError(err error) {
	h.deliver.Lock()
	if !h.live {
		h.deliver.Unlock()
		return
	}
	h.live = false
	h.failure = err
	registered := h.registered
	h.unsubscribe = nil
	onError := h.onError
	h.deliver.Unlock()

	if !registered {
		// Activate reports this failure itself
		return
	}

	h.manager.forget(h)

	kind := string(h.feed.Kind)
	activeSubscriptions.WithLabelValues(kind).Dec()
	connectionErrors.WithLabelValues(kind).Inc()

	log.WithFields(log.Fields{
		"feed":   h.feed.String(),
		"handle": h.id,
		"error":  err,
	}).Warn("Subscription dropped by data source")

	if onError != nil {
		onError(&ConnectionError{Feed: h.feed, Err: err})
	}
}
