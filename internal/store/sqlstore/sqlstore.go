// Package sqlstore implements the chat stores on database/sql. Queries are
// written with "?" placeholders and rebound per dialect, so the same code
// serves Postgres (managed mode) and SQLite (standalone mode).
package sqlstore

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/botchat/internal/store"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// DB wraps a *sql.DB with its dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// New returns all chat stores sharing one handle.
func New(db *sql.DB, dialect Dialect) *store.Stores {
	d := &DB{db: db, dialect: dialect}
	return &store.Stores{
		Users:    &UserStore{d},
		Channels: &ChannelStore{d},
		Messages: &MessageStore{d},
		DB:       db,
	}
}

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
