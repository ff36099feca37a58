// Package store looks up criminal profiles in the people table of a SQLite or
// PostgreSQL database. Every query opens and closes its own connection.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/andresmejia3/watchlist/internal/types"
)

// ErrNotFound is returned when no people row has the requested id.
var ErrNotFound = errors.New("profile not found")

// ProfileStore is the read-only view of the people table.
type ProfileStore interface {
	// Profile returns the record with the given id or ErrNotFound.
	Profile(ctx context.Context, id int) (*types.Profile, error)
	// Profiles returns every record ordered by id.
	Profiles(ctx context.Context) ([]types.Profile, error)
}

// Open picks a backend from the DSN: postgres:// or postgresql:// URLs use
// PostgreSQL, sqlite:// URLs and bare paths use a SQLite file.
func Open(dsn string) (ProfileStore, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgres(dsn), nil
	default:
		return NewSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}
