package realtime

import (
	"context"
	"huddle/models"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// User is the signed in identity a session writes as
type User struct {
	ID    string
	Email string
}

type SessionConfig struct {
	User User

	// OnChannels is called with the full channel list on every snapshot and
	// selection change. Like OnMessage it may read the session but must not
	// call SelectChannel or Close synchronously.
	OnChannels func([]ChannelItem)

	// OnMessage is called once per appended message
	OnMessage func(MessageItem)

	// OnError is called when the data source drops one of the session's feeds
	OnError func(error)
}

// Session is the chat view: a channel list and the messages of the selected
// channel, each backed by one feed of a shared Manager
type Session struct {
	config   SessionConfig
	source   Source
	manager  *Manager
	channels *ChannelList
	messages *MessageLog

	// ops serializes SelectChannel so only one messages feed is switched at a time
	ops sync.Mutex

	mu        sync.Mutex
	channelID string
}

func NewSession(source Source, config SessionConfig) *Session {
	return &Session{
		config:   config,
		source:   source,
		manager:  NewManager(source),
		channels: NewChannelList(config.OnChannels),
		messages: NewMessageLog(config.User.ID, config.OnMessage),
	}
}

// Open subscribes to the channel list
func (s *Session) Open(ctx context.Context) error {
	_, err := s.manager.Activate(ctx, models.ChannelsFeed(), s.channels.Replace, s.errorHandler())
	return err
}

// SelectChannel switches the message view to a channel. Selecting the
// current channel again does nothing. Render callbacks run without the
// session lock held, so they may read the session.
func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	s.ops.Lock()
	defer s.ops.Unlock()

	if s.CurrentChannel() == channelID && s.manager.Current(models.Messages) != nil {
		return nil
	}

	// Release the old feed before clearing so no stale message lands in the new view
	s.manager.Deactivate(s.manager.Current(models.Messages))
	s.messages.Reset()
	s.setChannel(channelID)
	s.channels.SetActive(channelID)

	if _, err := s.manager.Activate(ctx, models.MessagesFeed(channelID), s.messages.Append, s.errorHandler()); err != nil {
		s.setChannel("")
		s.channels.SetActive("")
		return err
	}

	log.WithFields(log.Fields{
		"channel": channelID,
	}).Info("Selected channel")

	return nil
}

// CreateChannel writes a new channel record
func (s *Session) CreateChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyInput
	}

	record := models.Channel{Name: name, CreatedBy: s.config.User.ID}.Record()
	return s.write(ctx, models.ChannelsCollection, record)
}

// SendMessage writes a message to the selected channel
func (s *Session) SendMessage(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}

	channelID := s.CurrentChannel()
	if channelID == "" {
		return "", ErrNoChannel
	}

	record := models.Message{
		Text:        text,
		SenderID:    s.config.User.ID,
		SenderEmail: s.config.User.Email,
	}.Record()
	return s.write(ctx, models.MessagesCollection(channelID), record)
}

func (s *Session) CurrentChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

func (s *Session) setChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelID = channelID
}

func (s *Session) Channels() []ChannelItem {
	return s.channels.Items()
}

func (s *Session) Messages() []MessageItem {
	return s.messages.Items()
}

// Close releases both feeds
func (s *Session) Close() {
	s.manager.Close()
}

func (s *Session) write(ctx context.Context, collection string, record models.Record) (string, error) {
	id, err := s.source.Write(ctx, collection, record)
	if err != nil {
		log.WithFields(log.Fields{
			"collection": collection,
			"error":      err,
		}).Error("Write failed")
		return "", &WriteError{Collection: collection, Err: err}
	}
	return id, nil
}

func (s *Session) errorHandler() ActivateOption {
	return WithErrorHandler(func(err error) {
		if s.config.OnError != nil {
			s.config.OnError(err)
		}
	})
}
