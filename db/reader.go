package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"huddle/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ListChannels returns every channel ordered by creation time ascending
func (db *DB) ListChannels(ctx context.Context) ([]models.Channel, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "name", "created_by", "created_at").From("channels")
	sb.OrderBy("created_at", "rowid").Asc()

	sql, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var c models.Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		channels = append(channels, c)
	}

	return channels, rows.Err()
}

// ListMessages returns a channel's messages ordered by creation time ascending
func (db *DB) ListMessages(ctx context.Context, channelID string) ([]models.Message, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "channel_id", "text", "sender_id", "sender_email", "created_at").From("messages")
	sb.Where(sb.Equal("channel_id", channelID))
	sb.OrderBy("created_at", "rowid").Asc()

	sql, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.Text, &m.SenderID, &m.SenderEmail, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *DB) ChannelExists(ctx context.Context, channelID string) (bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("1").From("channels").Where(sb.Equal("id", channelID)).Limit(1)

	query, args := sb.Build()
	var one int
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query error: %w", err)
	}
	return true, nil
}

// LatestTimestamp returns the newest created_at across channels and messages,
// or zero for an empty database
func (db *DB) LatestTimestamp(ctx context.Context) (int64, error) {
	var latest int64
	err := db.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(created_at), 0) FROM (
			SELECT created_at FROM channels
			UNION ALL
			SELECT created_at FROM messages
		)`).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return latest, nil
}
