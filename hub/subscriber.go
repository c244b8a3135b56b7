package hub

import (
	"huddle/models"
	"sync"
)

// subscriber pumps batches to one subscription on its own goroutine. Changes
// pushed while a batch is being delivered are coalesced into the next batch.
type subscriber struct {
	feed    models.Feed
	desc    bool
	onBatch func(models.Batch)
	onError func(error)

	mu       sync.Mutex
	records  []models.Record
	pending  []models.ChangeEvent
	notify   chan struct{}
	done     chan struct{}
	failure  error
	stopOnce sync.Once
}

func newSubscriber(feed models.Feed, desc bool, records []models.Record, onBatch func(models.Batch), onError func(error)) *subscriber {
	if desc {
		records = reversed(records)
	}
	return &subscriber{
		feed:    feed,
		desc:    desc,
		onBatch: onBatch,
		onError: onError,
		records: records,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) push(change models.ChangeEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, change)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// stop ends the pump. A non-nil err is reported through onError.
func (s *subscriber) stop(err error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.failure = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *subscriber) run() {
	initial := models.Batch{
		Snapshot: s.copyRecords(),
		Changes:  make([]models.ChangeEvent, 0, len(s.records)),
	}
	for _, r := range initial.Snapshot {
		initial.Changes = append(initial.Changes, models.ChangeEvent{Type: models.Added, Record: r, Feed: s.feed})
	}
	if !s.deliver(initial) {
		return
	}

	for {
		select {
		case <-s.done:
			s.finish()
			return
		case <-s.notify:
			batch, ok := s.drain()
			if !ok {
				continue
			}
			if !s.deliver(batch) {
				return
			}
		}
	}
}

func (s *subscriber) deliver(batch models.Batch) bool {
	select {
	case <-s.done:
		s.finish()
		return false
	default:
	}
	s.onBatch(batch)
	return true
}

func (s *subscriber) finish() {
	s.mu.Lock()
	err := s.failure
	s.mu.Unlock()
	if err != nil && s.onError != nil {
		s.onError(err)
	}
}

// drain applies pending changes to the snapshot and returns them as a batch
func (s *subscriber) drain() (models.Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return models.Batch{}, false
	}
	changes := s.pending
	s.pending = nil

	for _, change := range changes {
		switch change.Type {
		case models.Added:
			if s.desc {
				s.records = append([]models.Record{change.Record}, s.records...)
			} else {
				s.records = append(s.records, change.Record)
			}
		case models.Modified:
			for i := range s.records {
				if s.records[i].ID == change.Record.ID {
					s.records[i] = change.Record
				}
			}
		case models.Removed:
			kept := s.records[:0]
			for _, r := range s.records {
				if r.ID != change.Record.ID {
					kept = append(kept, r)
				}
			}
			s.records = kept
		}
	}

	return models.Batch{Snapshot: s.copyRecordsLocked(), Changes: changes}, true
}

func (s *subscriber) copyRecords() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyRecordsLocked()
}

func (s *subscriber) copyRecordsLocked() []models.Record {
	return append([]models.Record{}, s.records...)
}

func reversed(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}
