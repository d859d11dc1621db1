package gtfs

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// Feed holds the small tables of one extracted feed. stop_times is never
// loaded whole; it is streamed on demand.
type Feed struct {
	Dir        string
	Operator   config.Operator
	Routes     []Route
	Trips      []Trip
	Stops      map[string]Stop
	Calendars  map[string]models.CalendarType // by service_id
	Translator *Translator

	once      sync.Once
	lines     []models.Line
	lineTrips map[string][]Trip // by line code
	deriveErr error
}

// LoadFeed reads routes, trips, stops, calendar and translations of an
// extracted feed
func LoadFeed(dir string, op config.Operator, locale string) (*Feed, error) {
	routes, err := parseRoutes(dir)
	if err != nil {
		return nil, err
	}
	trips, err := parseTrips(dir)
	if err != nil {
		return nil, err
	}
	stops, err := parseStops(dir)
	if err != nil {
		return nil, err
	}
	services, err := parseServices(dir)
	if err != nil {
		log.Printf("Warning: %s calendar.txt unreadable, services become specific calendars: %v", op.Code, err)
	}
	dates, err := parseServiceDates(dir)
	if err != nil {
		log.Printf("Warning: %s calendar_dates.txt unreadable: %v", op.Code, err)
	}

	lang := op.FeedLanguage
	if lang == "" {
		lang = feedLanguage(dir)
	}
	translator, err := LoadTranslations(dir, locale, lang)
	if err != nil {
		log.Printf("Warning: %s translations.txt unreadable: %v", op.Code, err)
		translator = emptyTranslator()
	}

	log.Printf("GTFS parsed %s: %d routes, %d stops, %d trips, %d translations",
		op.Code, len(routes), len(stops), len(trips), translator.Len())

	return &Feed{
		Dir:        dir,
		Operator:   op,
		Routes:     routes,
		Trips:      trips,
		Stops:      stops,
		Calendars:  serviceCalendars(services, dates),
		Translator: translator,
	}, nil
}

// Feed returns op's loaded feed, extracting it first when needed.
// Translations and tables are loaded once per extracted directory.
func (p *Pipeline) Feed(ctx context.Context, op config.Operator) (*Feed, error) {
	dir, err := p.EnsureExtracted(ctx, op)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	feed, ok := p.feeds[dir]
	p.mu.Unlock()
	if ok {
		return feed, nil
	}

	feed, err = LoadFeed(dir, op, p.locale)
	if err != nil {
		return nil, fmt.Errorf("failed to load GTFS feed of %s: %w", op.Code, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.feeds[dir]; ok {
		return existing, nil
	}
	p.feeds[dir] = feed
	return feed, nil
}

// Lines derives op's lines from its feed
func (p *Pipeline) Lines(ctx context.Context, op config.Operator) ([]models.Line, error) {
	feed, err := p.Feed(ctx, op)
	if err != nil {
		return nil, err
	}
	return feed.Lines()
}

// Lines returns the derived lines; derivation runs once per feed
func (f *Feed) Lines() ([]models.Line, error) {
	f.derive()
	return f.lines, f.deriveErr
}

// TripsOf returns the trips that make up a derived line
func (f *Feed) TripsOf(lineCode string) ([]Trip, bool) {
	f.derive()
	trips, ok := f.lineTrips[lineCode]
	return trips, ok
}

func (f *Feed) derive() {
	f.once.Do(func() {
		f.lines, f.lineTrips, f.deriveErr = deriveLines(f)
	})
}

// stopName returns the localized, width-normalized name of a stop
func (f *Feed) stopName(stopID string) string {
	s, ok := f.Stops[stopID]
	if !ok {
		return stopID
	}
	return Normalize(f.Translator.Translate("stops", "stop_name", stopID, s.StopName))
}
