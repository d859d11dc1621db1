package kvstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/mytimetablemaker/transit-sync/internal/db"
)

// SQLite is a Store backed by the kv_entries table
type SQLite struct {
	db *db.DB
}

// NewSQLite wraps a connected database whose schema has been ensured
func NewSQLite(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) getRaw(ctx context.Context, key string) (string, string, bool) {
	var kind, value string
	err := s.db.Conn().QueryRowContext(ctx,
		"SELECT kind, value FROM kv_entries WHERE key = ?", key,
	).Scan(&kind, &value)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("Warning: kvstore: failed to read %s: %v", key, err)
		}
		return "", "", false
	}
	return kind, value, true
}

func (s *SQLite) putRaw(ctx context.Context, key, kind, value string) error {
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv_entries (key, kind, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				kind = excluded.kind,
				value = excluded.value,
				updated_at = excluded.updated_at
		`, key, kind, value, time.Now().UTC().Format(time.RFC3339))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) GetString(ctx context.Context, key, def string) string {
	if _, v, ok := s.getRaw(ctx, key); ok {
		return v
	}
	return def
}

func (s *SQLite) GetInt(ctx context.Context, key string, def int) int {
	if _, v, ok := s.getRaw(ctx, key); ok {
		return decodeInt(key, v, def)
	}
	return def
}

func (s *SQLite) GetBool(ctx context.Context, key string, def bool) bool {
	if _, v, ok := s.getRaw(ctx, key); ok {
		return decodeBool(key, v, def)
	}
	return def
}

func (s *SQLite) GetStringSet(ctx context.Context, key string) []string {
	if _, v, ok := s.getRaw(ctx, key); ok {
		return decodeSet(key, v)
	}
	return nil
}

func (s *SQLite) PutString(ctx context.Context, key, value string) error {
	return s.putRaw(ctx, key, kindString, value)
}

func (s *SQLite) PutInt(ctx context.Context, key string, value int) error {
	return s.putRaw(ctx, key, kindInt, strconv.Itoa(value))
}

func (s *SQLite) PutBool(ctx context.Context, key string, value bool) error {
	return s.putRaw(ctx, key, kindBool, strconv.FormatBool(value))
}

func (s *SQLite) PutStringSet(ctx context.Context, key string, values []string) error {
	return s.putRaw(ctx, key, kindSet, encodeSet(values))
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	err := s.db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = ?", key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Contains(ctx context.Context, key string) bool {
	_, _, ok := s.getRaw(ctx, key)
	return ok
}

func (s *SQLite) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx,
		"SELECT key FROM kv_entries WHERE substr(key, 1, length(?)) = ? ORDER BY key",
		prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, rows.Err()
}
