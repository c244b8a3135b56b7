package realtime

import (
	"huddle/models"

	"github.com/samber/lo"
)

// Strategy turns a data source batch into the events a feed's consumer renders.
// A nil result means there is nothing to render for the batch.
type Strategy interface {
	Select(feed models.Feed, batch models.Batch) []models.ChangeEvent
}

// SnapshotStrategy treats every batch as the full current set. The consumer
// replaces what it shows with the result, which is never nil.
type SnapshotStrategy struct{}

func (SnapshotStrategy) Select(feed models.Feed, batch models.Batch) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(batch.Snapshot))
	for _, record := range batch.Snapshot {
		events = append(events, models.ChangeEvent{Type: models.Added, Record: record, Feed: feed})
	}
	return events
}

// AppendStrategy forwards only Added changes in delivery order. Modified and
// Removed changes are dropped, so edits and deletions never reach the view.
type AppendStrategy struct{}

func (AppendStrategy) Select(feed models.Feed, batch models.Batch) []models.ChangeEvent {
	added := lo.Filter(batch.Changes, func(change models.ChangeEvent, _ int) bool {
		return change.Type == models.Added
	})
	if len(added) == 0 {
		return nil
	}
	return lo.Map(added, func(change models.ChangeEvent, _ int) models.ChangeEvent {
		change.Feed = feed
		return change
	})
}

// StrategyFor returns the rendering strategy used for a feed kind
func StrategyFor(kind models.FeedKind) Strategy {
	if kind == models.Channels {
		return SnapshotStrategy{}
	}
	return AppendStrategy{}
}
