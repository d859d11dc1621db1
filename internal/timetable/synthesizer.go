package timetable

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// Selection is what a timetable is generated for: a line slot and the chosen
// line and stops
type Selection struct {
	Route     kvstore.Route
	LineIndex int
	Line      *models.Line
	Departure *models.Stop
	Arrival   *models.Stop

	// Refresh ignores the cached calendar set and asks the source again
	Refresh bool
}

func (s Selection) complete() bool {
	return s.Line != nil && s.Departure != nil && s.Arrival != nil
}

// Result is the generated timetable per final calendar type
type Result struct {
	RunID      string
	Calendars  []models.CalendarType
	Timetables map[models.CalendarType][]models.TransportationTime
}

// Synthesizer generates and persists timetables
type Synthesizer struct {
	store       kvstore.Store
	concurrency int
	locks       *keyedMutex
}

// NewSynthesizer creates a synthesizer writing to store. concurrency bounds
// the per-calendar fetches of one run.
func NewSynthesizer(store kvstore.Store, concurrency int) *Synthesizer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Synthesizer{store: store, concurrency: concurrency, locks: newKeyedMutex()}
}

// Synthesize fetches the line's timetables from src for every calendar type,
// matches the selected stop pair, merges calendars sharing a display type
// and replaces the persisted buckets of the line slot.
//
// An incomplete selection is logged and yields an empty result. Failures of
// one calendar or one direction only empty that branch; the returned error
// is reserved for an out-of-range line index and store writes.
func (s *Synthesizer) Synthesize(ctx context.Context, src Source, sel Selection) (Result, error) {
	result := Result{Timetables: make(map[models.CalendarType][]models.TransportationTime)}
	if !sel.complete() {
		log.Printf("Warning: timetable not generated: %v", models.ErrPreconditionNotMet)
		return result, nil
	}
	if err := kvstore.CheckLineIndex(sel.LineIndex); err != nil {
		return result, err
	}
	result.RunID = uuid.NewString()
	line := *sel.Line

	calendars := s.calendarTypes(ctx, src, sel)
	if len(calendars) == 0 {
		log.Printf("Timetable %s: no calendar types for %s", result.RunID, line.Code)
		return result, nil
	}

	results := s.fetchAll(ctx, src, line, *sel.Departure, *sel.Arrival, calendars)
	m := mergeCalendars(calendars, results)

	unlock := s.locks.Lock(slotKey(sel.Route, sel.LineIndex))
	defer unlock()
	if err := persist(ctx, s.store, sel.Route, sel.LineIndex, m); err != nil {
		return result, err
	}

	result.Calendars = m.Calendars
	result.Timetables = m.Timetables
	var all []models.TransportationTime
	for _, c := range m.Calendars {
		all = append(all, m.Timetables[c]...)
	}
	ride := rideTimeStats(all)
	log.Printf("Timetable %s: %s %s→%s wrote %d entries under %d calendars, ride %.1f±%.1f min (%s line %d)",
		result.RunID, line.Code, sel.Departure.Name, sel.Arrival.Name, ride.Count(), len(m.Calendars),
		ride.Mean(), ride.StdDev(), sel.Route, sel.LineIndex)
	return result, nil
}

// calendarTypes returns the raw calendar set of the line, from the store when
// cached under the line code, else from src. A fetched set is cached for the
// slot and for the line code.
func (s *Synthesizer) calendarTypes(ctx context.Context, src Source, sel Selection) []models.CalendarType {
	globalKey := kvstore.GlobalRawCalendarTypesKey(globalLineCode(*sel.Line))
	if !sel.Refresh {
		if cached := s.store.GetStringSet(ctx, globalKey); len(cached) > 0 {
			return parseCalendars(cached)
		}
	}

	types, err := src.CalendarTypes(ctx, *sel.Line)
	if err != nil {
		log.Printf("Warning: calendar types of %s: %v", sel.Line.Code, err)
		return nil
	}
	if len(types) == 0 {
		return nil
	}

	raw := make([]string, len(types))
	for i, c := range types {
		raw[i] = c.String()
	}
	if err := s.store.PutStringSet(ctx, kvstore.RawCalendarTypesKey(sel.Route, sel.LineIndex), raw); err != nil {
		log.Printf("Warning: caching calendar types of %s: %v", sel.Line.Code, err)
	}
	if err := s.store.PutStringSet(ctx, globalKey, raw); err != nil {
		log.Printf("Warning: caching calendar types of %s: %v", sel.Line.Code, err)
	}
	return parseCalendars(raw)
}

// globalLineCode qualifies bare GTFS route ids with the operator; ODPT codes
// are already namespaced
func globalLineCode(line models.Line) string {
	if line.OperatorCode == "" || strings.Contains(line.Code, ":") {
		return line.Code
	}
	return line.OperatorCode + "." + line.Code
}

func parseCalendars(raw []string) []models.CalendarType {
	seen := make(map[models.CalendarType]bool)
	types := make([]models.CalendarType, 0, len(raw))
	for _, r := range raw {
		c := models.ParseCalendarType(r)
		if c.IsZero() || seen[c] {
			continue
		}
		seen[c] = true
		types = append(types, c)
	}
	return models.SortCalendarTypes(types)
}

// fetchAll runs one fetch per calendar type, at most s.concurrency at once
func (s *Synthesizer) fetchAll(ctx context.Context, src Source, line models.Line, departure, arrival models.Stop, calendars []models.CalendarType) map[models.CalendarType][]models.TransportationTime {
	var (
		mu      sync.Mutex
		results = make(map[models.CalendarType][]models.TransportationTime, len(calendars))
		g       errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, calendar := range calendars {
		calendar := calendar
		g.Go(func() error {
			entries := fetchCalendar(ctx, src, line, departure, arrival, calendar)
			mu.Lock()
			results[calendar] = entries
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

func fetchCalendar(ctx context.Context, src Source, line models.Line, departure, arrival models.Stop, calendar models.CalendarType) []models.TransportationTime {
	directions := queryDirections(line)
	sets := make([][]models.TransportationTime, len(directions))
	for i, direction := range directions {
		trips, err := src.Timetables(ctx, line, direction, calendar)
		if err != nil {
			log.Printf("Warning: timetables of %s (%s %s): %v", line.Code, calendar, direction, err)
			continue
		}
		sets[i] = MatchTrips(trips, departure, arrival)
	}
	return sortEntries(resolveDirections(sets))
}
