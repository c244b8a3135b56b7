package db_test

import (
	"context"
	"huddle/db"
	"huddle/models"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*db.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "huddle.db")
	require.NoError(t, db.Migrate(path))

	store, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestMigrateIsRepeatable(t *testing.T) {
	_, path := openTestDB(t)
	assert.NoError(t, db.Migrate(path))
}

func TestChannelsOrderedByCreation(t *testing.T) {
	store, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateChannel(ctx, models.Channel{ID: "b", Name: "second", CreatedAt: 20}))
	require.NoError(t, store.CreateChannel(ctx, models.Channel{ID: "a", Name: "first", CreatedBy: "u1", CreatedAt: 10}))

	channels, err := store.ListChannels(ctx)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, models.Channel{ID: "a", Name: "first", CreatedBy: "u1", CreatedAt: 10}, channels[0])
	assert.Equal(t, "b", channels[1].ID)

	exists, err := store.ChannelExists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ChannelExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessagesScopedToChannel(t *testing.T) {
	store, _ := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.CreateChannel(ctx, models.Channel{ID: "general", Name: "general", CreatedAt: 1}))
	require.NoError(t, store.CreateChannel(ctx, models.Channel{ID: "random", Name: "random", CreatedAt: 2}))

	require.NoError(t, store.CreateMessage(ctx, models.Message{ID: "m2", ChannelID: "general", Text: "two", CreatedAt: 5}))
	require.NoError(t, store.CreateMessage(ctx, models.Message{ID: "m1", ChannelID: "general", Text: "one", SenderID: "u1", SenderEmail: "u1@example.com", CreatedAt: 3}))
	require.NoError(t, store.CreateMessage(ctx, models.Message{ID: "r1", ChannelID: "random", Text: "elsewhere", CreatedAt: 4}))

	msgs, err := store.ListMessages(ctx, "general")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "u1@example.com", msgs[0].SenderEmail)
	assert.Equal(t, "m2", msgs[1].ID)

	latest, err := store.LatestTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest)
}

func TestMessageRequiresChannel(t *testing.T) {
	store, _ := openTestDB(t)
	err := store.CreateMessage(context.Background(), models.Message{ID: "m1", ChannelID: "nope", Text: "hi", CreatedAt: 1})
	assert.Error(t, err)
}

func TestEmptyDatabase(t *testing.T) {
	store, _ := openTestDB(t)
	ctx := context.Background()

	channels, err := store.ListChannels(ctx)
	require.NoError(t, err)
	assert.Empty(t, channels)

	latest, err := store.LatestTimestamp(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest)
}

func TestTidyRemovesOldMessages(t *testing.T) {
	store, path := openTestDB(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.CreateChannel(ctx, models.Channel{ID: "general", Name: "general", CreatedAt: now.UnixMilli()}))
	require.NoError(t, store.CreateMessage(ctx, models.Message{ID: "old", ChannelID: "general", Text: "old", CreatedAt: now.Add(-48 * time.Hour).UnixMilli()}))
	require.NoError(t, store.CreateMessage(ctx, models.Message{ID: "new", ChannelID: "general", Text: "new", CreatedAt: now.UnixMilli()}))

	removed, err := db.Tidy(ctx, path, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	msgs, err := store.ListMessages(ctx, "general")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].ID)
}

func TestRollback(t *testing.T) {
	store, path := openTestDB(t)
	store.Close()

	require.NoError(t, db.Rollback(path))
	require.NoError(t, db.Migrate(path))
}
