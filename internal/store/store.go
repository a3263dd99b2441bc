// Package store keeps the catalog index and downloaded tiles in a SQLite
// database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/beetlebugorg/chartview/pkg/catalog"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

const schema = `
create table if not exists metadata (name text primary key, value text);
create table if not exists definitions (id text primary key, body text not null);
create table if not exists tiles (key text primary key, data blob not null, fetched_at integer not null);
`

// Store is a SQLite backed catalog.IndexStore and mapsource.TileCache.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One connection: an in-memory database exists per connection, and
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func optimizeConnection(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// LoadIndex returns the saved catalog snapshot, or nil when none was saved.
func (s *Store) LoadIndex(ctx context.Context) (*catalog.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "select value from metadata where name = 'hash'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hash, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("index hash %q: %w", raw, err)
	}

	rows, err := s.db.QueryContext(ctx, "select id, body from definitions order by id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := &catalog.Snapshot{Hash: hash}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var def mapsource.Definition
		if err := json.Unmarshal([]byte(body), &def); err != nil {
			return nil, fmt.Errorf("definition %s: %w", id, err)
		}
		snap.Definitions = append(snap.Definitions, &def)
	}
	return snap, rows.Err()
}

// SaveIndex replaces the saved snapshot.
func (s *Store) SaveIndex(ctx context.Context, snap *catalog.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "delete from definitions"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "insert into definitions (id, body) values (?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, def := range snap.Definitions {
		body, err := json.Marshal(def)
		if err != nil {
			return fmt.Errorf("definition %s: %w", def.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, def.ID, string(body)); err != nil {
			return fmt.Errorf("definition %s: %w", def.ID, err)
		}
	}
	_, err = tx.ExecContext(ctx,
		"insert into metadata (name, value) values ('hash', ?) on conflict(name) do update set value = excluded.value",
		strconv.FormatUint(snap.Hash, 10))
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetTile returns a stored tile.
func (s *Store) GetTile(ctx context.Context, key string) (mapsource.CachedTile, bool, error) {
	var t mapsource.CachedTile
	var fetched int64
	err := s.db.QueryRowContext(ctx, "select data, fetched_at from tiles where key = ?", key).Scan(&t.Data, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return t, false, nil
	}
	if err != nil {
		return t, false, err
	}
	t.FetchedAt = time.UnixMilli(fetched)
	return t, true, nil
}

// PutTile stores or replaces a tile.
func (s *Store) PutTile(ctx context.Context, key string, t mapsource.CachedTile) error {
	_, err := s.db.ExecContext(ctx,
		"insert into tiles (key, data, fetched_at) values (?, ?, ?) on conflict(key) do update set data = excluded.data, fetched_at = excluded.fetched_at",
		key, t.Data, t.FetchedAt.UnixMilli())
	return err
}

// PruneTiles deletes tiles fetched before cutoff and returns how many were
// removed.
func (s *Store) PruneTiles(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "delete from tiles where fetched_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TileCount returns the number of stored tiles.
func (s *Store) TileCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "select count(*) from tiles").Scan(&n)
	return n, err
}
