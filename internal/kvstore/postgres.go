package kvstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mytimetablemaker/transit-sync/internal/db"
)

// Postgres is a Store backed by the kv_entries table in a Postgres database
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and ensures the schema
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, db.SchemaSQL()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) getRaw(ctx context.Context, key string) (string, string, bool) {
	var kind, value string
	err := p.pool.QueryRow(ctx, "SELECT kind, value FROM kv_entries WHERE key = $1", key).Scan(&kind, &value)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("Warning: kvstore: failed to read %s: %v", key, err)
		}
		return "", "", false
	}
	return kind, value, true
}

func (p *Postgres) putRaw(ctx context.Context, key, kind, value string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO kv_entries (key, kind, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, kind, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) GetString(ctx context.Context, key, def string) string {
	if _, v, ok := p.getRaw(ctx, key); ok {
		return v
	}
	return def
}

func (p *Postgres) GetInt(ctx context.Context, key string, def int) int {
	if _, v, ok := p.getRaw(ctx, key); ok {
		return decodeInt(key, v, def)
	}
	return def
}

func (p *Postgres) GetBool(ctx context.Context, key string, def bool) bool {
	if _, v, ok := p.getRaw(ctx, key); ok {
		return decodeBool(key, v, def)
	}
	return def
}

func (p *Postgres) GetStringSet(ctx context.Context, key string) []string {
	if _, v, ok := p.getRaw(ctx, key); ok {
		return decodeSet(key, v)
	}
	return nil
}

func (p *Postgres) PutString(ctx context.Context, key, value string) error {
	return p.putRaw(ctx, key, kindString, value)
}

func (p *Postgres) PutInt(ctx context.Context, key string, value int) error {
	return p.putRaw(ctx, key, kindInt, strconv.Itoa(value))
}

func (p *Postgres) PutBool(ctx context.Context, key string, value bool) error {
	return p.putRaw(ctx, key, kindBool, strconv.FormatBool(value))
}

func (p *Postgres) PutStringSet(ctx context.Context, key string, values []string) error {
	return p.putRaw(ctx, key, kindSet, encodeSet(values))
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, "DELETE FROM kv_entries WHERE key = $1", key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Contains(ctx context.Context, key string) bool {
	_, _, ok := p.getRaw(ctx, key)
	return ok
}

func (p *Postgres) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT key FROM kv_entries WHERE left(key, char_length($1)) = $1 ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
