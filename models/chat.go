package models

// Channel model with the fields the chat views use
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedBy string `json:"createdBy"`
	CreatedAt int64  `json:"createdAt"`
}

// Message posted to a channel
type Message struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channelId"`
	Text        string `json:"text"`
	SenderID    string `json:"senderId"`
	SenderEmail string `json:"senderEmail"`
	CreatedAt   int64  `json:"createdAt"`
}

func ChannelFromRecord(r Record) Channel {
	return Channel{
		ID:        r.ID,
		Name:      r.String("name"),
		CreatedBy: r.String("createdBy"),
		CreatedAt: r.CreatedAt,
	}
}

func (c Channel) Record() Record {
	return Record{
		ID:        c.ID,
		CreatedAt: c.CreatedAt,
		Fields: map[string]any{
			"name":      c.Name,
			"createdBy": c.CreatedBy,
		},
	}
}

func MessageFromRecord(channelID string, r Record) Message {
	return Message{
		ID:          r.ID,
		ChannelID:   channelID,
		Text:        r.String("text"),
		SenderID:    r.String("senderId"),
		SenderEmail: r.String("senderEmail"),
		CreatedAt:   r.CreatedAt,
	}
}

func (m Message) Record() Record {
	return Record{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		Fields: map[string]any{
			"text":        m.Text,
			"senderId":    m.SenderID,
			"senderEmail": m.SenderEmail,
		},
	}
}

// StreamRequest is the first frame a websocket client sends to open a subscription
type StreamRequest struct {
	Query
}

type FrameType string

const (
	FrameReady FrameType = "ready"
	FrameBatch FrameType = "batch"
	FrameError FrameType = "error"
)

// StreamFrame is sent from server to client on a subscription stream
type StreamFrame struct {
	Type  FrameType `json:"type"`
	Batch *Batch    `json:"batch,omitempty"`
	Error string    `json:"error,omitempty"`
}

// WriteResponse is returned by the HTTP write endpoints
type WriteResponse struct {
	ID string `json:"id"`
}
