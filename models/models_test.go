package models_test

import (
	"huddle/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedValidate(t *testing.T) {
	tests := []struct {
		name    string
		feed    models.Feed
		wantErr bool
	}{
		{name: "channels", feed: models.ChannelsFeed()},
		{name: "messages", feed: models.MessagesFeed("general")},
		{name: "channels with scope", feed: models.Feed{Kind: models.Channels, ScopeID: "general"}, wantErr: true},
		{name: "messages without scope", feed: models.Feed{Kind: models.Messages}, wantErr: true},
		{name: "messages with blank scope", feed: models.MessagesFeed("  "), wantErr: true},
		{name: "scope with slash", feed: models.MessagesFeed("a/b"), wantErr: true},
		{name: "unknown kind", feed: models.Feed{Kind: "users"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feed.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidFeed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseCollection(t *testing.T) {
	feed, err := models.ParseCollection("channels")
	require.NoError(t, err)
	assert.Equal(t, models.ChannelsFeed(), feed)

	feed, err = models.ParseCollection("channels/general/messages")
	require.NoError(t, err)
	assert.Equal(t, models.MessagesFeed("general"), feed)
	assert.Equal(t, "channels/general/messages", feed.Collection())

	for _, path := range []string{"", "users", "channels//messages", "channels/general", "channels/general/messages/x"} {
		_, err := models.ParseCollection(path)
		assert.ErrorIs(t, err, models.ErrUnknownCollection, path)
	}
}

func TestFeedQueryOrdersByCreationAscending(t *testing.T) {
	q := models.FeedQuery(models.MessagesFeed("general"))
	assert.Equal(t, models.Query{
		Collection: "channels/general/messages",
		OrderBy:    "createdAt",
		Direction:  models.Asc,
	}, q)
}

func TestRecordConversions(t *testing.T) {
	msg := models.MessageFromRecord("general", models.Record{
		ID:        "msg1",
		CreatedAt: 1,
		Fields:    map[string]any{"text": "hi", "senderId": "u1", "senderEmail": "u1@example.com"},
	})
	assert.Equal(t, models.Message{
		ID:          "msg1",
		ChannelID:   "general",
		Text:        "hi",
		SenderID:    "u1",
		SenderEmail: "u1@example.com",
		CreatedAt:   1,
	}, msg)

	ch := models.ChannelFromRecord(models.Channel{ID: "c1", Name: "general", CreatedBy: "u1", CreatedAt: 5}.Record())
	assert.Equal(t, "general", ch.Name)
	assert.Equal(t, int64(5), ch.CreatedAt)

	// Non-string fields are ignored
	assert.Equal(t, "", models.Record{Fields: map[string]any{"text": 3}}.String("text"))
}
