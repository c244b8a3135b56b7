package realtime

import (
	"huddle/models"
	"sync"

	"github.com/samber/lo"
)

// ChannelItem is one rendered row of the channel list
type ChannelItem struct {
	models.Channel
	Active bool `json:"active"`
}

// ChannelList renders the Channels feed. Each update replaces the whole list.
type ChannelList struct {
	// rendering orders renders so the last one always shows the latest state
	rendering sync.Mutex

	mu       sync.Mutex
	channels []models.Channel
	activeID string
	onRender func([]ChannelItem)
}

func NewChannelList(onRender func([]ChannelItem)) *ChannelList {
	return &ChannelList{onRender: onRender}
}

// Replace renders a snapshot of the channel list
func (l *ChannelList) Replace(events []models.ChangeEvent) {
	l.rendering.Lock()
	defer l.rendering.Unlock()

	l.mu.Lock()
	l.channels = lo.Map(events, func(event models.ChangeEvent, _ int) models.Channel {
		return models.ChannelFromRecord(event.Record)
	})
	items := l.itemsLocked()
	l.mu.Unlock()

	l.render(items)
}

// SetActive highlights the selected channel
func (l *ChannelList) SetActive(channelID string) {
	l.rendering.Lock()
	defer l.rendering.Unlock()

	l.mu.Lock()
	l.activeID = channelID
	items := l.itemsLocked()
	l.mu.Unlock()

	l.render(items)
}

func (l *ChannelList) Items() []ChannelItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.itemsLocked()
}

// Find returns the channel with the given id from the last snapshot
func (l *ChannelList) Find(channelID string) (models.Channel, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return lo.Find(l.channels, func(c models.Channel) bool {
		return c.ID == channelID
	})
}

func (l *ChannelList) itemsLocked() []ChannelItem {
	return lo.Map(l.channels, func(c models.Channel, _ int) ChannelItem {
		return ChannelItem{Channel: c, Active: c.ID == l.activeID}
	})
}

func (l *ChannelList) render(items []ChannelItem) {
	if l.onRender != nil {
		l.onRender(items)
	}
}

// MessageItem is one rendered message
type MessageItem struct {
	models.Message
	// Sent is true for messages written by the session's user
	Sent   bool   `json:"sent"`
	Sender string `json:"sender"`
}

// MessageLog renders a Messages feed by appending records in arrival order
type MessageLog struct {
	mu       sync.Mutex
	userID   string
	items    []MessageItem
	onAppend func(MessageItem)
}

func NewMessageLog(userID string, onAppend func(MessageItem)) *MessageLog {
	return &MessageLog{userID: userID, onAppend: onAppend}
}

// Append renders new messages after the ones already shown
func (l *MessageLog) Append(events []models.ChangeEvent) {
	l.mu.Lock()
	added := make([]MessageItem, 0, len(events))
	for _, event := range events {
		msg := models.MessageFromRecord(event.Feed.ScopeID, event.Record)
		item := MessageItem{Message: msg, Sent: msg.SenderID == l.userID, Sender: msg.SenderEmail}
		if item.Sent {
			item.Sender = "You"
		}
		added = append(added, item)
	}
	l.items = append(l.items, added...)
	l.mu.Unlock()

	if l.onAppend != nil {
		for _, item := range added {
			l.onAppend(item)
		}
	}
}

// Reset clears the log when switching channels
func (l *MessageLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

func (l *MessageLog) Items() []MessageItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MessageItem(nil), l.items...)
}
