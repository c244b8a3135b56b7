package models

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ChannelsCollection is the collection path holding every channel
	ChannelsCollection = "channels"

	// OrderByCreatedAt is the only ordering key records carry
	OrderByCreatedAt = "createdAt"
)

var (
	ErrInvalidFeed       = errors.New("invalid feed")
	ErrUnknownCollection = errors.New("unknown collection")
)

// FeedKind names a logical stream a view can observe
type FeedKind string

const (
	Channels FeedKind = "channels"
	Messages FeedKind = "messages"
)

// Feed identifies a stream of ordered records. ScopeID is the channel id for
// Messages feeds and empty for the Channels feed.
type Feed struct {
	Kind    FeedKind `json:"kind"`
	ScopeID string   `json:"scopeId,omitempty"`
}

func ChannelsFeed() Feed {
	return Feed{Kind: Channels}
}

func MessagesFeed(channelID string) Feed {
	return Feed{Kind: Messages, ScopeID: channelID}
}

// Validate checks that ScopeID is present iff the feed is a Messages feed
func (f Feed) Validate() error {
	switch f.Kind {
	case Channels:
		if f.ScopeID != "" {
			return fmt.Errorf("%w: channels feed takes no scope, got %q", ErrInvalidFeed, f.ScopeID)
		}
	case Messages:
		if strings.TrimSpace(f.ScopeID) == "" {
			return fmt.Errorf("%w: messages feed requires a channel id", ErrInvalidFeed)
		}
		if strings.Contains(f.ScopeID, "/") {
			return fmt.Errorf("%w: channel id %q contains a path separator", ErrInvalidFeed, f.ScopeID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFeed, f.Kind)
	}
	return nil
}

// Collection returns the collection path the feed reads from
func (f Feed) Collection() string {
	if f.Kind == Messages {
		return MessagesCollection(f.ScopeID)
	}
	return ChannelsCollection
}

func (f Feed) String() string {
	if f.ScopeID == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ":" + f.ScopeID
}

// MessagesCollection returns the path of a channel's messages
func MessagesCollection(channelID string) string {
	return ChannelsCollection + "/" + channelID + "/messages"
}

// ParseCollection maps a collection path back to the feed it belongs to
func ParseCollection(path string) (Feed, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == ChannelsCollection:
		return ChannelsFeed(), nil
	case len(parts) == 3 && parts[0] == ChannelsCollection && parts[1] != "" && parts[2] == "messages":
		return MessagesFeed(parts[1]), nil
	}
	return Feed{}, fmt.Errorf("%w: %q", ErrUnknownCollection, path)
}

// ChangeType describes one record transition
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Record is the opaque payload flowing through a feed. CreatedAt is the
// ordering key in unix milliseconds, assigned by the data source on commit.
type Record struct {
	ID        string         `json:"id"`
	CreatedAt int64          `json:"createdAt"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// String returns a string field or the empty string
func (r Record) String(key string) string {
	if r.Fields == nil {
		return ""
	}
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// ChangeEvent fired for a single record in a feed
type ChangeEvent struct {
	Type   ChangeType `json:"type"`
	Record Record     `json:"record"`
	Feed   Feed       `json:"feed"`
}

// Batch is one push from a data source: the full current ordered set plus
// the changes since the previous batch for the same subscription
type Batch struct {
	Snapshot []Record      `json:"snapshot"`
	Changes  []ChangeEvent `json:"changes"`
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Query describes a subscription against a data source
type Query struct {
	Collection string    `json:"collection"`
	OrderBy    string    `json:"orderBy"`
	Direction  Direction `json:"direction"`
}

// FeedQuery returns the query a feed subscribes with, ordered by creation
// time ascending
func FeedQuery(f Feed) Query {
	return Query{
		Collection: f.Collection(),
		OrderBy:    OrderByCreatedAt,
		Direction:  Asc,
	}
}
