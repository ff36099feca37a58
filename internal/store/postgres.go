package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/watchlist/internal/types"
	"github.com/jackc/pgx/v5"
)

// Postgres reads profiles from a PostgreSQL people table.
type Postgres struct {
	connString string
}

// NewPostgres returns a store for connString. No connection is made until the first query.
func NewPostgres(connString string) *Postgres {
	return &Postgres{connString: connString}
}

func (s *Postgres) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return conn, nil
}

// Profile fetches one people row by id.
func (s *Postgres) Profile(ctx context.Context, id int) (*types.Profile, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	// Background so the close still reaches the server after a Ctrl+C
	defer conn.Close(context.Background())

	var p types.Profile
	err = conn.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(crime, ''), COALESCE(nationality, '')
		FROM people WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Crime, &p.Nationality)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Profiles lists every people row ordered by id.
func (s *Postgres) Profiles(ctx context.Context) ([]types.Profile, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(crime, ''), COALESCE(nationality, '')
		FROM people ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Profile
	for rows.Next() {
		var p types.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Crime, &p.Nationality); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
