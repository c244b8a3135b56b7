package db

import (
	"context"
	"fmt"
	"huddle/models"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

func (db *DB) CreateChannel(ctx context.Context, channel models.Channel) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"id":   channel.ID,
		"name": channel.Name,
	}).Info("Creating channel")

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("channels").
		Cols("id", "name", "created_by", "created_at").
		Values(channel.ID, channel.Name, channel.CreatedBy, channel.CreatedAt)

	sql, args := ib.Build()
	if _, err := db.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	return nil
}

func (db *DB) CreateMessage(ctx context.Context, msg models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"id":      msg.ID,
		"channel": msg.ChannelID,
	}).Debug("Creating message")

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("messages").
		Cols("id", "channel_id", "text", "sender_id", "sender_email", "created_at").
		Values(msg.ID, msg.ChannelID, msg.Text, msg.SenderID, msg.SenderEmail, msg.CreatedAt)

	sql, args := ib.Build()
	if _, err := db.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}
