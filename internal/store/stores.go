package store

import "io"

// Stores is the top-level container for all storage backends.
// Both standalone (SQLite) and managed (Postgres) modes fill every field.
type Stores struct {
	Users    UserStore
	Channels ChannelStore
	Messages MessageStore

	// DB is the underlying handle, closed on shutdown.
	DB io.Closer
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	PostgresDSN string
	SQLitePath  string
}
