package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/store"
)

// MessageStore implements store.MessageStore.
type MessageStore struct{ *DB }

const messageColumns = `m.id, m.channel_id, m.sender_id, m.content, m.created_at, u.name, u.is_bot`

func (s *MessageStore) InsertMessage(ctx context.Context, msg *store.MessageData) error {
	if msg.ID == uuid.Nil {
		msg.ID = store.GenNewID()
	}
	msg.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (id, channel_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`),
		msg.ID, msg.ChannelID, msg.SenderID, msg.Content, msg.CreatedAt,
	)
	return err
}

func (s *MessageStore) GetMessage(ctx context.Context, id uuid.UUID) (*store.MessageData, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+messageColumns+`
		 FROM messages m JOIN users u ON u.id = m.sender_id
		 WHERE m.id = ?`), id)
	var d store.MessageData
	err := row.Scan(&d.ID, &d.ChannelID, &d.SenderID, &d.Content, &d.CreatedAt, &d.SenderName, &d.SenderIsBot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MessageStore) ListRecentMessages(ctx context.Context, channelID, before uuid.UUID, limit int) ([]store.MessageData, error) {
	if limit <= 0 {
		return nil, nil
	}

	var (
		rows *sql.Rows
		err  error
	)
	if before == uuid.Nil {
		rows, err = s.db.QueryContext(ctx, s.rebind(
			`SELECT `+messageColumns+`
			 FROM messages m JOIN users u ON u.id = m.sender_id
			 WHERE m.channel_id = ?
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT ?`), channelID, limit)
	} else {
		pivot, perr := s.GetMessage(ctx, before)
		if perr != nil {
			return nil, perr
		}
		rows, err = s.db.QueryContext(ctx, s.rebind(
			`SELECT `+messageColumns+`
			 FROM messages m JOIN users u ON u.id = m.sender_id
			 WHERE m.channel_id = ?
			   AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))
			 ORDER BY m.created_at DESC, m.id DESC
			 LIMIT ?`), channelID, pivot.CreatedAt, pivot.CreatedAt, pivot.ID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessageRows(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func scanMessageRows(rows *sql.Rows) ([]store.MessageData, error) {
	var messages []store.MessageData
	for rows.Next() {
		var d store.MessageData
		if err := rows.Scan(
			&d.ID, &d.ChannelID, &d.SenderID, &d.Content, &d.CreatedAt,
			&d.SenderName, &d.SenderIsBot,
		); err != nil {
			return nil, err
		}
		messages = append(messages, d)
	}
	return messages, rows.Err()
}
