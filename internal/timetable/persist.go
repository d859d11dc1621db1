package timetable

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// keyedMutex serializes work per key; distinct keys do not contend
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock of key and returns its release function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func slotKey(route kvstore.Route, lineIndex int) string {
	return fmt.Sprintf("%s/%d", route.Token(), lineIndex)
}

// LockRoute holds every line slot of route until the returned function is
// called. Slots are taken in index order, so it never deadlocks against a
// synthesis run holding a single slot.
func (s *Synthesizer) LockRoute(route kvstore.Route) func() {
	unlocks := make([]func(), 0, kvstore.MaxLineIndex-kvstore.MinLineIndex+1)
	for i := kvstore.MinLineIndex; i <= kvstore.MaxLineIndex; i++ {
		unlocks = append(unlocks, s.locks.Lock(slotKey(route, i)))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// Stored reads the persisted timetable of a line slot. The slot lock is held
// for the whole read, so a concurrent synthesis is seen either entirely or
// not at all.
func (s *Synthesizer) Stored(ctx context.Context, route kvstore.Route, lineIndex int) Result {
	unlock := s.locks.Lock(slotKey(route, lineIndex))
	defer unlock()

	result := Result{Timetables: make(map[models.CalendarType][]models.TransportationTime)}
	for _, c := range LoadCalendars(ctx, s.store, route, lineIndex) {
		var entries []models.TransportationTime
		for hour := kvstore.MinHour; hour <= kvstore.MaxHour; hour++ {
			entries = append(entries, LoadHour(ctx, s.store, route, lineIndex, c, hour)...)
		}
		result.Calendars = append(result.Calendars, c)
		result.Timetables[c] = entries
	}
	return result
}

// persist replaces the stored timetable of a line slot with m. Every raw
// source type and every type of the previous final set is cleared before
// the new buckets are written, so nothing from an earlier run survives.
func persist(ctx context.Context, store kvstore.Store, route kvstore.Route, lineIndex int, m merged) error {
	stale := make(map[string]bool)
	for _, c := range m.Sources {
		stale[c.Tag()] = true
	}
	for _, raw := range store.GetStringSet(ctx, kvstore.CalendarTypesKey(route, lineIndex)) {
		stale[models.ParseCalendarType(raw).Tag()] = true
	}
	for tag := range stale {
		if err := clearCalendar(ctx, store, route, lineIndex, tag); err != nil {
			return err
		}
	}

	final := make([]string, 0, len(m.Calendars))
	for _, c := range m.Calendars {
		if err := writeCalendar(ctx, store, route, lineIndex, c, m.Timetables[c]); err != nil {
			return err
		}
		final = append(final, c.String())
	}
	return store.PutStringSet(ctx, kvstore.CalendarTypesKey(route, lineIndex), final)
}

func clearCalendar(ctx context.Context, store kvstore.Store, route kvstore.Route, lineIndex int, tag string) error {
	for hour := kvstore.MinHour; hour <= kvstore.MaxHour; hour++ {
		if err := store.Remove(ctx, kvstore.TimetableHourKey(route, lineIndex, tag, hour)); err != nil {
			return fmt.Errorf("clear %s hour %02d: %w", tag, hour, err)
		}
	}
	if err := store.Remove(ctx, kvstore.TrainTypeListKey(route, lineIndex, tag)); err != nil {
		return fmt.Errorf("clear %s train types: %w", tag, err)
	}
	return nil
}

func writeCalendar(ctx context.Context, store kvstore.Store, route kvstore.Route, lineIndex int, calendar models.CalendarType, entries []models.TransportationTime) error {
	buckets := make(map[int][]models.TransportationTime)
	var types []string
	seenType := make(map[string]bool)
	for _, e := range entries {
		hour := e.Hour()
		if hour > kvstore.MaxHour {
			log.Printf("Warning: dropping %s departure %s past hour %d", calendar, e.DepartureTime, kvstore.MaxHour)
			continue
		}
		buckets[hour] = append(buckets[hour], e)
		if label := e.TypeLabel(); label != "" && !seenType[label] {
			seenType[label] = true
			types = append(types, label)
		}
	}

	tag := calendar.Tag()
	for hour := kvstore.MinHour; hour <= kvstore.MaxHour; hour++ {
		bucket, ok := buckets[hour]
		if !ok {
			continue
		}
		data, err := json.Marshal(bucket)
		if err != nil {
			return fmt.Errorf("encode %s hour %02d: %w", tag, hour, err)
		}
		if err := store.PutString(ctx, kvstore.TimetableHourKey(route, lineIndex, tag, hour), string(data)); err != nil {
			return fmt.Errorf("write %s hour %02d: %w", tag, hour, err)
		}
	}
	if len(types) > 0 {
		if err := store.PutStringSet(ctx, kvstore.TrainTypeListKey(route, lineIndex, tag), types); err != nil {
			return fmt.Errorf("write %s train types: %w", tag, err)
		}
	}
	return nil
}

// LoadHour reads one persisted hour bucket; nil when absent or unreadable
func LoadHour(ctx context.Context, store kvstore.Store, route kvstore.Route, lineIndex int, calendar models.CalendarType, hour int) []models.TransportationTime {
	raw := store.GetString(ctx, kvstore.TimetableHourKey(route, lineIndex, calendar.Tag(), hour), "")
	if raw == "" {
		return nil
	}
	var entries []models.TransportationTime
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("Warning: unreadable timetable bucket %s hour %02d: %v", calendar, hour, err)
		return nil
	}
	return entries
}

// LoadCalendars reads the final calendar set of a line slot
func LoadCalendars(ctx context.Context, store kvstore.Store, route kvstore.Route, lineIndex int) []models.CalendarType {
	raw := store.GetStringSet(ctx, kvstore.CalendarTypesKey(route, lineIndex))
	types := make([]models.CalendarType, 0, len(raw))
	for _, r := range raw {
		types = append(types, models.ParseCalendarType(r))
	}
	return models.SortCalendarTypes(types)
}
