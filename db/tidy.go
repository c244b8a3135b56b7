package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes messages older than retention from the database
func Tidy(ctx context.Context, database string, retention time.Duration) (int64, error) {
	db, err := connection(database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return tidy(ctx, db, time.Now().Add(-retention))
}

func tidy(ctx context.Context, db *sql.DB, cutoff time.Time) (int64, error) {
	deleteMessages := sb.SQLite.NewDeleteBuilder()
	query, args := deleteMessages.DeleteFrom("messages").Where(deleteMessages.LessThan("created_at", cutoff.UnixMilli())).Build()

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying database")

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	return res.RowsAffected()
}
