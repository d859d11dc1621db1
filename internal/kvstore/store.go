// Package kvstore defines the key-value persistence the timetable layout is
// written to, and provides memory, SQLite and Postgres backends.
package kvstore

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strconv"
)

// Store is the key-value persistence used for settings, fetch validators and
// timetable buckets. Getters return the default when the key is absent or
// unreadable.
type Store interface {
	GetString(ctx context.Context, key, def string) string
	GetInt(ctx context.Context, key string, def int) int
	GetBool(ctx context.Context, key string, def bool) bool
	GetStringSet(ctx context.Context, key string) []string

	PutString(ctx context.Context, key, value string) error
	PutInt(ctx context.Context, key string, value int) error
	PutBool(ctx context.Context, key string, value bool) error
	PutStringSet(ctx context.Context, key string, values []string) error

	Remove(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) bool

	// Keys lists every key starting with prefix, sorted
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Value kinds as stored by the SQL backends
const (
	kindString = "string"
	kindInt    = "int"
	kindBool   = "bool"
	kindSet    = "set"
)

// encodeSet stores a set as a sorted JSON array so equal sets encode equally
func encodeSet(values []string) string {
	uniq := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !uniq[v] {
			uniq[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	data, _ := json.Marshal(out)
	return string(data)
}

func decodeSet(key, raw string) []string {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("Warning: kvstore: key %s holds an invalid set: %v", key, err)
		return nil
	}
	return out
}

func decodeInt(key, raw string, def int) int {
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: kvstore: key %s holds a non-integer value", key)
		return def
	}
	return v
}

func decodeBool(key, raw string, def bool) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: kvstore: key %s holds a non-boolean value", key)
		return def
	}
	return v
}
