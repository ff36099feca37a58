package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/watchlist/internal/types"
	_ "github.com/glebarez/go-sqlite"
)

// SQLite reads profiles from a SQLite database file (criminal.db by default).
type SQLite struct {
	path string
}

// NewSQLite checks that the database file exists. It is never created.
func NewSQLite(path string) (*SQLite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open profile database: %s is a directory", path)
	}
	return &SQLite{path: path}, nil
}

func (s *SQLite) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Profile fetches one people row by id.
func (s *SQLite) Profile(ctx context.Context, id int) (*types.Profile, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var p types.Profile
	err = db.QueryRowContext(ctx,
		"SELECT ID, COALESCE(name, ''), COALESCE(crime, ''), COALESCE(nationality, '') FROM people WHERE ID = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.Crime, &p.Nationality)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Profiles lists every people row ordered by id.
func (s *SQLite) Profiles(ctx context.Context) ([]types.Profile, error) {
	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT ID, COALESCE(name, ''), COALESCE(crime, ''), COALESCE(nationality, '') FROM people ORDER BY ID")
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
