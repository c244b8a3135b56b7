package realtime_test

import (
	"context"
	"errors"
	"huddle/models"
	"strconv"
	"sync"
)

type fakeSubscription struct {
	query        models.Query
	onBatch      func(models.Batch)
	onError      func(error)
	unsubscribed int
}

// fakeSource records subscriptions and lets tests push batches by hand
type fakeSource struct {
	mu            sync.Mutex
	subs          []*fakeSubscription
	subscribeErr  error
	writeErr      error
	writes        []fakeWrite
	onSubscribe   func(sub *fakeSubscription)
	unsubscribeFn func(sub *fakeSubscription)
}

type fakeWrite struct {
	collection string
	record     models.Record
}

func (f *fakeSource) Subscribe(_ context.Context, q models.Query, onBatch func(models.Batch), onError func(error)) (func(), error) {
	f.mu.Lock()
	if f.subscribeErr != nil {
		err := f.subscribeErr
		f.mu.Unlock()
		return nil, err
	}
	sub := &fakeSubscription{query: q, onBatch: onBatch, onError: onError}
	f.subs = append(f.subs, sub)
	hook := f.onSubscribe
	f.mu.Unlock()

	if hook != nil {
		hook(sub)
	}

	return func() {
		f.mu.Lock()
		sub.unsubscribed++
		fn := f.unsubscribeFn
		f.mu.Unlock()
		if fn != nil {
			fn(sub)
		}
	}, nil
}

func (f *fakeSource) Write(_ context.Context, collection string, record models.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return "", f.writeErr
	}
	f.writes = append(f.writes, fakeWrite{collection: collection, record: record})
	return "id-" + strconv.Itoa(len(f.writes)), nil
}

func (f *fakeSource) sub(i int) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) unsubscribed(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i].unsubscribed
}

var errNetwork = errors.New("network unreachable")

func record(id string, ts int64, fields map[string]any) models.Record {
	return models.Record{ID: id, CreatedAt: ts, Fields: fields}
}

func added(feed models.Feed, records ...models.Record) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(records))
	for _, r := range records {
		events = append(events, models.ChangeEvent{Type: models.Added, Record: r, Feed: feed})
	}
	return events
}

// recorder collects every onChange invocation
type recorder struct {
	mu    sync.Mutex
	calls [][]models.ChangeEvent
}

func (r *recorder) onChange(events []models.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, events)
}

func (r *recorder) all() [][]models.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]models.ChangeEvent(nil), r.calls...)
}

func (r *recorder) ids() []string {
	var ids []string
	for _, call := range r.all() {
		for _, event := range call {
			ids = append(ids, event.Record.ID)
		}
	}
	return ids
}
