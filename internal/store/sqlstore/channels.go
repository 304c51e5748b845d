package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/store"
)

// ChannelStore implements store.ChannelStore.
type ChannelStore struct{ *DB }

const channelColumns = `c.id, c.name, c.is_group, c.created_by, c.created_at`

func (s *ChannelStore) CreateChannel(ctx context.Context, ch *store.ChannelData, memberIDs []uuid.UUID) error {
	if ch.ID == uuid.Nil {
		ch.ID = store.GenNewID()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO channels (id, name, is_group, created_by, created_at) VALUES (?, ?, ?, ?, ?)`),
		ch.ID, ch.Name, ch.IsGroup, ch.CreatedBy, ch.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}

	insertMember := s.rebind(
		`INSERT INTO channel_members (channel_id, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (channel_id, user_id) DO NOTHING`)
	for i, uid := range memberIDs {
		// Offset join times so member order is stable.
		joined := ch.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		if _, err := tx.ExecContext(ctx, insertMember, ch.ID, uid, joined); err != nil {
			return fmt.Errorf("insert member %s: %w", uid, err)
		}
	}

	return tx.Commit()
}

func (s *ChannelStore) GetChannel(ctx context.Context, id uuid.UUID) (*store.ChannelData, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+channelColumns+` FROM channels c WHERE c.id = ?`), id)
	var ch store.ChannelData
	err := row.Scan(&ch.ID, &ch.Name, &ch.IsGroup, &ch.CreatedBy, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChannelStore) FindDirectChannel(ctx context.Context, a, b uuid.UUID) (*store.ChannelData, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+channelColumns+`
		 FROM channels c
		 JOIN channel_members ma ON ma.channel_id = c.id AND ma.user_id = ?
		 JOIN channel_members mb ON mb.channel_id = c.id AND mb.user_id = ?
		 WHERE c.is_group = ?
		 ORDER BY c.created_at ASC
		 LIMIT 1`), a, b, false)
	var ch store.ChannelData
	err := row.Scan(&ch.ID, &ch.Name, &ch.IsGroup, &ch.CreatedBy, &ch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChannelStore) ListChannelsForUser(ctx context.Context, userID uuid.UUID) ([]store.ChannelData, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+channelColumns+`,
		 COALESCE((SELECT u.name FROM channel_members om
		           JOIN users u ON u.id = om.user_id
		           WHERE om.channel_id = c.id AND om.user_id <> ?
		           ORDER BY om.created_at LIMIT 1), '') AS other_user_name
		 FROM channels c
		 JOIN channel_members m ON m.channel_id = c.id
		 WHERE m.user_id = ?
		 ORDER BY c.created_at DESC, c.id DESC`), userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []store.ChannelData
	for rows.Next() {
		var ch store.ChannelData
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.IsGroup, &ch.CreatedBy, &ch.CreatedAt, &ch.OtherUserName); err != nil {
			return nil, err
		}
		if ch.IsGroup {
			ch.OtherUserName = ""
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func (s *ChannelStore) AddMember(ctx context.Context, channelID, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO channel_members (channel_id, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (channel_id, user_id) DO NOTHING`),
		channelID, userID, time.Now().UTC())
	return err
}

func (s *ChannelStore) RemoveMember(ctx context.Context, channelID, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`), channelID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ChannelStore) IsMember(ctx context.Context, channelID, userID uuid.UUID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND user_id = ?`),
		channelID, userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ChannelStore) ListMembers(ctx context.Context, channelID uuid.UUID) ([]store.UserData, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+userColumns+`
		 FROM channel_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.channel_id = ?
		 ORDER BY m.created_at ASC, u.id ASC`), channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUserRows(rows)
}
