package kvstore

import (
	"context"
	"fmt"
	"time"
)

// rawAccessor is implemented by every backend in this package; it preserves
// the value kind across export and import
type rawAccessor interface {
	getRaw(ctx context.Context, key string) (kind, value string, ok bool)
	putRaw(ctx context.Context, key, kind, value string) error
}

// DocumentValue is one flat key-value entry
type DocumentValue struct {
	Kind  string `json:"kind"` // "string", "int", "bool" or "set"
	Value string `json:"value"`
}

// Document is the sync representation of one route slot's namespace
type Document struct {
	Route      string                   `json:"route"`
	ExportedAt time.Time                `json:"exportedAt"`
	Entries    map[string]DocumentValue `json:"entries"`
}

// ExportRoute serializes every key of route r
func ExportRoute(ctx context.Context, s Store, r Route) (*Document, error) {
	raw, ok := s.(rawAccessor)
	if !ok {
		return nil, fmt.Errorf("store %T does not support document export", s)
	}

	keys, err := s.Keys(ctx, RoutePrefix(r))
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Route:      r.Token(),
		ExportedAt: time.Now().UTC(),
		Entries:    make(map[string]DocumentValue),
	}
	for _, k := range keys {
		if !BelongsTo(k, r) {
			continue
		}
		if kind, value, ok := raw.getRaw(ctx, k); ok {
			doc.Entries[k] = DocumentValue{Kind: kind, Value: value}
		}
	}
	return doc, nil
}

// ImportRoute replaces the namespace of the document's route with its
// entries. The last import wins; entries outside the namespace are rejected.
func ImportRoute(ctx context.Context, s Store, doc *Document) error {
	raw, ok := s.(rawAccessor)
	if !ok {
		return fmt.Errorf("store %T does not support document import", s)
	}

	r, err := ParseRoute(doc.Route)
	if err != nil {
		return err
	}
	for k, v := range doc.Entries {
		if !BelongsTo(k, r) {
			return fmt.Errorf("key %q does not belong to route %s", k, r.Token())
		}
		switch v.Kind {
		case kindString, kindInt, kindBool, kindSet:
		default:
			return fmt.Errorf("key %q has unknown kind %q", k, v.Kind)
		}
	}

	existing, err := s.Keys(ctx, RoutePrefix(r))
	if err != nil {
		return err
	}
	for _, k := range existing {
		if _, keep := doc.Entries[k]; keep || !BelongsTo(k, r) {
			continue
		}
		if err := s.Remove(ctx, k); err != nil {
			return err
		}
	}
	for k, v := range doc.Entries {
		if err := raw.putRaw(ctx, k, v.Kind, v.Value); err != nil {
			return err
		}
	}
	return nil
}
