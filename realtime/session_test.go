package realtime_test

import (
	"context"
	"errors"
	"huddle/models"
	"huddle/realtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = realtime.User{ID: "u1", Email: "u1@example.com"}

func TestSessionRendersChannelsAndHighlightsSelection(t *testing.T) {
	source := &fakeSource{}
	var rendered [][]realtime.ChannelItem
	s := realtime.NewSession(source, realtime.SessionConfig{
		User:       testUser,
		OnChannels: func(items []realtime.ChannelItem) { rendered = append(rendered, items) },
	})
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))
	source.sub(0).onBatch(models.Batch{Snapshot: []models.Record{
		models.Channel{ID: "c1", Name: "general", CreatedAt: 1}.Record(),
		models.Channel{ID: "c2", Name: "random", CreatedAt: 2}.Record(),
	}})

	require.NoError(t, s.SelectChannel(context.Background(), "c2"))

	items := s.Channels()
	require.Len(t, items, 2)
	assert.False(t, items[0].Active)
	assert.True(t, items[1].Active)
	assert.Equal(t, "random", items[1].Name)
	assert.NotEmpty(t, rendered)
}

func TestSessionSelectSameChannelIsNoop(t *testing.T) {
	source := &fakeSource{}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})
	defer s.Close()

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	assert.Equal(t, 1, source.count())
	assert.Equal(t, "c1", s.CurrentChannel())
}

func TestSessionSwitchingChannelClearsMessages(t *testing.T) {
	source := &fakeSource{}
	var appended []realtime.MessageItem
	s := realtime.NewSession(source, realtime.SessionConfig{
		User:      testUser,
		OnMessage: func(item realtime.MessageItem) { appended = append(appended, item) },
	})
	defer s.Close()

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	feed1 := models.MessagesFeed("c1")
	source.sub(0).onBatch(models.Batch{Changes: added(feed1,
		models.Message{ID: "m1", Text: "hi", SenderID: "u1", SenderEmail: "u1@example.com", CreatedAt: 1}.Record(),
		models.Message{ID: "m2", Text: "hey", SenderID: "u2", SenderEmail: "u2@example.com", CreatedAt: 2}.Record(),
	)})

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Sent)
	assert.Equal(t, "You", msgs[0].Sender)
	assert.False(t, msgs[1].Sent)
	assert.Equal(t, "u2@example.com", msgs[1].Sender)
	assert.Equal(t, "c1", msgs[0].ChannelID)

	require.NoError(t, s.SelectChannel(context.Background(), "c2"))
	assert.Empty(t, s.Messages())
	assert.Equal(t, 1, source.unsubscribed(0))

	// Late batch for the old channel is dropped
	source.sub(0).onBatch(models.Batch{Changes: added(feed1, record("m3", 3, nil))})
	assert.Empty(t, s.Messages())
	assert.Len(t, appended, 2)
}

func TestSessionSelectFailureAllowsRetry(t *testing.T) {
	source := &fakeSource{subscribeErr: errNetwork}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})
	defer s.Close()

	err := s.SelectChannel(context.Background(), "c1")
	var connErr *realtime.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "", s.CurrentChannel())

	source.mu.Lock()
	source.subscribeErr = nil
	source.mu.Unlock()

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	assert.Equal(t, "c1", s.CurrentChannel())
}

func TestSessionReselectAfterDrop(t *testing.T) {
	source := &fakeSource{}
	var dropped []error
	s := realtime.NewSession(source, realtime.SessionConfig{
		User:    testUser,
		OnError: func(err error) { dropped = append(dropped, err) },
	})
	defer s.Close()

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	source.sub(0).onError(errNetwork)
	require.Len(t, dropped, 1)

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	assert.Equal(t, 2, source.count())
}

func TestSessionCreateChannel(t *testing.T) {
	source := &fakeSource{}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})

	_, err := s.CreateChannel(context.Background(), "   ")
	assert.ErrorIs(t, err, realtime.ErrEmptyInput)

	id, err := s.CreateChannel(context.Background(), "  general ")
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	require.Len(t, source.writes, 1)
	assert.Equal(t, "channels", source.writes[0].collection)
	assert.Equal(t, "general", source.writes[0].record.String("name"))
	assert.Equal(t, "u1", source.writes[0].record.String("createdBy"))
}

func TestSessionSendMessage(t *testing.T) {
	source := &fakeSource{}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})
	defer s.Close()

	_, err := s.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, realtime.ErrNoChannel)

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))

	_, err = s.SendMessage(context.Background(), "")
	assert.ErrorIs(t, err, realtime.ErrEmptyInput)

	_, err = s.SendMessage(context.Background(), " hi ")
	require.NoError(t, err)
	require.Len(t, source.writes, 1)
	assert.Equal(t, "channels/c1/messages", source.writes[0].collection)
	assert.Equal(t, "hi", source.writes[0].record.String("text"))
	assert.Equal(t, "u1@example.com", source.writes[0].record.String("senderEmail"))
}

func TestSessionWriteError(t *testing.T) {
	source := &fakeSource{writeErr: errNetwork}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})

	_, err := s.CreateChannel(context.Background(), "general")
	var writeErr *realtime.WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "channels", writeErr.Collection)
	assert.ErrorIs(t, err, errNetwork)
}

func TestSessionCloseReleasesFeeds(t *testing.T) {
	source := &fakeSource{}
	s := realtime.NewSession(source, realtime.SessionConfig{User: testUser})

	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.SelectChannel(context.Background(), "c1"))
	s.Close()

	assert.Equal(t, 1, source.unsubscribed(0))
	assert.Equal(t, 1, source.unsubscribed(1))
}

func TestSessionCallbacksMayReadSession(t *testing.T) {
	source := &fakeSource{}
	var s *realtime.Session

	var mu sync.Mutex
	var seen []string
	see := func() {
		current := s.CurrentChannel()
		mu.Lock()
		seen = append(seen, current)
		mu.Unlock()
	}

	s = realtime.NewSession(source, realtime.SessionConfig{
		User:       testUser,
		OnChannels: func([]realtime.ChannelItem) { see() },
		OnMessage:  func(realtime.MessageItem) { see() },
	})
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.SelectChannel(context.Background(), "c1") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SelectChannel blocked on a render callback")
	}

	source.sub(0).onBatch(models.Batch{Changes: added(models.MessagesFeed("c1"),
		models.Message{ID: "m1", Text: "hi", SenderID: "u2", CreatedAt: 1}.Record(),
	)})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"c1", "c1"}, seen)
}

func TestSessionSwitchWaitsForInFlightMessage(t *testing.T) {
	source := &fakeSource{}
	var s *realtime.Session

	entered := make(chan struct{})
	release := make(chan struct{})
	s = realtime.NewSession(source, realtime.SessionConfig{
		User: testUser,
		OnMessage: func(realtime.MessageItem) {
			close(entered)
			<-release
			_ = s.CurrentChannel()
		},
	})
	defer s.Close()

	require.NoError(t, s.SelectChannel(context.Background(), "c1"))

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		source.sub(0).onBatch(models.Batch{Changes: added(models.MessagesFeed("c1"),
			models.Message{ID: "m1", Text: "hi", SenderID: "u2", CreatedAt: 1}.Record(),
		)})
	}()
	<-entered

	switched := make(chan error, 1)
	go func() { switched <- s.SelectChannel(context.Background(), "c2") }()

	// Let the switch reach the delivery lock before the callback reads the session
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-switched:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("switching channels deadlocked with an in-flight message")
	}
	<-delivered

	assert.Equal(t, "c2", s.CurrentChannel())
	assert.Empty(t, s.Messages())
}
