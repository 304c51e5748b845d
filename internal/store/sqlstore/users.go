package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/botchat/internal/providers"
	"github.com/nextlevelbuilder/botchat/internal/store"
)

// UserStore implements store.UserStore.
type UserStore struct{ *DB }

const userColumns = `u.id, u.name, u.email, u.profile_picture, u.is_bot, u.system_prompt, u.model, u.created_at`

func (s *UserStore) CreateUser(ctx context.Context, u *store.UserData) error {
	if u.ID == uuid.Nil {
		u.ID = store.GenNewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, name, email, profile_picture, is_bot, system_prompt, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Name, u.Email, u.ProfilePicture, u.IsBot,
		nullString(u.SystemPrompt), nullString(string(u.Model)), u.CreatedAt,
	)
	return err
}

func (s *UserStore) UpsertUser(ctx context.Context, u *store.UserData) error {
	if u.ID == uuid.Nil {
		u.ID = store.GenNewID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (id, name, email, profile_picture, is_bot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   email = excluded.email,
		   profile_picture = excluded.profile_picture`),
		u.ID, u.Name, u.Email, u.ProfilePicture, false, u.CreatedAt,
	)
	return err
}

func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (*store.UserData, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users u WHERE u.id = ?`), id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *UserStore) ListUsers(ctx context.Context) ([]store.UserData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users u ORDER BY u.is_bot ASC, u.name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUserRows(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.UserData, error) {
	var u store.UserData
	var prompt, model sql.NullString
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.ProfilePicture, &u.IsBot,
		&prompt, &model, &u.CreatedAt,
	); err != nil {
		return nil, err
	}
	u.SystemPrompt = prompt.String
	u.Model = providers.ModelKind(model.String)
	return &u, nil
}

func scanUserRows(rows *sql.Rows) ([]store.UserData, error) {
	var users []store.UserData
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
