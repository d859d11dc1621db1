package timetable

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// fakeSource serves canned trips keyed by calendar and direction
type fakeSource struct {
	mu            sync.Mutex
	calendars     []models.CalendarType
	calendarErr   error
	trips         map[string][]models.Trip
	errs          map[string]error
	calendarCalls int
}

func tripKey(calendar models.CalendarType, direction string) string {
	return calendar.String() + "|" + direction
}

func (f *fakeSource) CalendarTypes(ctx context.Context, line models.Line) ([]models.CalendarType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendarCalls++
	return f.calendars, f.calendarErr
}

func (f *fakeSource) Timetables(ctx context.Context, line models.Line, direction string, calendar models.CalendarType) ([]models.Trip, error) {
	key := tripKey(calendar, direction)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.trips[key], nil
}

var (
	stopA = models.Stop{Code: "odpt.BusstopPole:Sample.A.1", Name: "A", Index: 0}
	stopB = models.Stop{Code: "odpt.BusstopPole:Sample.B.1", Name: "B", Index: 1}
)

func busTrip(dep, arr, number string) models.Trip {
	return models.Trip{
		Events: []models.StopEvent{
			{StopCode: stopA.Code, DepartureTime: dep},
			{StopCode: stopB.Code, ArrivalTime: arr},
		},
		Bus: &models.BusTime{BusNumber: number, RoutePattern: "Sample 1"},
	}
}

func busSelection() Selection {
	line := models.Line{Code: "odpt.BusroutePattern:Sample.1", Kind: models.KindBus, Name: "Sample 1", OperatorCode: "Sample"}
	dep, arr := stopA, stopB
	return Selection{Route: kvstore.Go1, LineIndex: 1, Line: &line, Departure: &dep, Arrival: &arr}
}

func snapshot(t *testing.T, store *kvstore.Memory) map[string]string {
	t.Helper()
	keys, err := store.Keys(context.Background(), "")
	require.NoError(t, err)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k] = store.GetString(context.Background(), k, "")
	}
	return out
}

func TestSynthesizeMergesCalendarsSharingDisplayType(t *testing.T) {
	ctx := context.Background()
	specific := models.ParseCalendarType("odpt.Calendar:Specific.Sample.Holiday")
	src := &fakeSource{
		calendars: []models.CalendarType{specific, models.Holiday, models.Weekday},
		trips: map[string][]models.Trip{
			tripKey(models.Holiday, ""): {
				busTrip("08:00", "08:10", "1"),
				busTrip("09:00", "09:10", "2"),
				busTrip("10:00", "10:10", "3"),
			},
			tripKey(specific, ""): {
				busTrip("09:00", "09:10", "2"),
				busTrip("07:30", "07:45", "4"),
			},
			tripKey(models.Weekday, ""): {
				busTrip("06:00", "06:20", "5"),
			},
		},
	}
	store := kvstore.NewMemory()
	stale := kvstore.TimetableHourKey(kvstore.Go1, 1, models.Holiday.Tag(), 6)
	require.NoError(t, store.PutString(ctx, stale, `[{"departureTime":"06:00"}]`))

	result, err := NewSynthesizer(store, 2).Synthesize(ctx, src, busSelection())
	require.NoError(t, err)

	assert.Equal(t, []models.CalendarType{models.Weekday, specific}, result.Calendars)
	merged := result.Timetables[specific]
	require.Len(t, merged, 4)
	var deps []string
	for _, e := range merged {
		deps = append(deps, e.DepartureTime)
	}
	assert.Equal(t, []string{"07:30", "08:00", "09:00", "10:00"}, deps)
	_, ok := result.Timetables[models.Holiday]
	assert.False(t, ok)

	assert.False(t, store.Contains(ctx, stale), "no stale bucket under the merged source type")
	keys, err := store.Keys(ctx, "go1timetable1Holiday")
	require.NoError(t, err)
	assert.Empty(t, keys)

	total := 0
	for hour := kvstore.MinHour; hour <= kvstore.MaxHour; hour++ {
		total += len(LoadHour(ctx, store, kvstore.Go1, 1, specific, hour))
	}
	assert.Equal(t, 4, total)
	assert.Len(t, LoadHour(ctx, store, kvstore.Go1, 1, specific, 9), 1)

	assert.Equal(t, []models.CalendarType{models.Weekday, specific}, LoadCalendars(ctx, store, kvstore.Go1, 1))
	assert.Equal(t, []string{"Sample 1"}, store.GetStringSet(ctx, kvstore.TrainTypeListKey(kvstore.Go1, 1, specific.Tag())))
	assert.ElementsMatch(t,
		[]string{specific.String(), models.Holiday.String(), models.Weekday.String()},
		store.GetStringSet(ctx, kvstore.RawCalendarTypesKey(kvstore.Go1, 1)))
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday, models.Saturday},
		trips: map[string][]models.Trip{
			tripKey(models.Weekday, ""):  {busTrip("07:00", "07:20", "1"), busTrip("23:50", "24:10", "2")},
			tripKey(models.Saturday, ""): {busTrip("08:00", "08:20", "3")},
		},
	}
	store := kvstore.NewMemory()
	s := NewSynthesizer(store, 4)

	_, err := s.Synthesize(ctx, src, busSelection())
	require.NoError(t, err)
	first := snapshot(t, store)

	_, err = s.Synthesize(ctx, src, busSelection())
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, store))
	assert.Equal(t, 1, src.calendarCalls, "the calendar set is cached per line code")
}

func TestSynthesizeReplacesPreviousCalendarSet(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday, models.Saturday},
		trips: map[string][]models.Trip{
			tripKey(models.Weekday, ""):  {busTrip("07:00", "07:20", "1")},
			tripKey(models.Saturday, ""): {busTrip("08:00", "08:20", "3")},
		},
	}
	store := kvstore.NewMemory()
	s := NewSynthesizer(store, 1)

	_, err := s.Synthesize(ctx, src, busSelection())
	require.NoError(t, err)
	require.Len(t, LoadHour(ctx, store, kvstore.Go1, 1, models.Saturday, 8), 1)

	src.calendars = []models.CalendarType{models.Weekday}
	sel := busSelection()
	sel.Refresh = true
	_, err = s.Synthesize(ctx, src, sel)
	require.NoError(t, err)

	assert.Nil(t, LoadHour(ctx, store, kvstore.Go1, 1, models.Saturday, 8))
	assert.False(t, store.Contains(ctx, kvstore.TrainTypeListKey(kvstore.Go1, 1, models.Saturday.Tag())))
	assert.Equal(t, []models.CalendarType{models.Weekday}, LoadCalendars(ctx, store, kvstore.Go1, 1))
	assert.Equal(t, 2, src.calendarCalls)
}

func TestSynthesizeWithoutSelectionIsNoOp(t *testing.T) {
	store := kvstore.NewMemory()
	src := &fakeSource{calendars: []models.CalendarType{models.Weekday}}
	sel := busSelection()
	sel.Arrival = nil

	result, err := NewSynthesizer(store, 1).Synthesize(context.Background(), src, sel)
	require.NoError(t, err)
	assert.Empty(t, result.Calendars)
	assert.Empty(t, result.Timetables)
	assert.Zero(t, store.Len())
	assert.Zero(t, src.calendarCalls)
}

func TestSynthesizeKeepsLineSlotsApart(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	synth := NewSynthesizer(store, 1)

	twelve, two := models.Specific("12"), models.Specific("2")
	first := &fakeSource{
		calendars: []models.CalendarType{twelve},
		trips:     map[string][]models.Trip{tripKey(twelve, ""): {busTrip("07:00", "07:15", "1")}},
	}
	second := &fakeSource{
		calendars: []models.CalendarType{two},
		trips:     map[string][]models.Trip{tripKey(two, ""): {busTrip("07:30", "07:45", "2")}},
	}

	sel := busSelection()
	sel.LineIndex = 11
	_, err := synth.Synthesize(ctx, second, sel)
	assert.Error(t, err)
	assert.Zero(t, store.Len())

	sel.LineIndex = 2
	sel.Line = &models.Line{Code: "odpt.BusroutePattern:Sample.2", Kind: models.KindBus, OperatorCode: "Sample"}
	_, err = synth.Synthesize(ctx, second, sel)
	require.NoError(t, err)

	sel = busSelection()
	_, err = synth.Synthesize(ctx, first, sel)
	require.NoError(t, err)

	require.Len(t, LoadHour(ctx, store, kvstore.Go1, 2, two, 7), 1)
	assert.Equal(t, "07:30", LoadHour(ctx, store, kvstore.Go1, 2, two, 7)[0].DepartureTime)
	require.Len(t, LoadHour(ctx, store, kvstore.Go1, 1, twelve, 7), 1)
}

func TestSynthesizeCalendarFailureKeepsStoredTimetable(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	s := NewSynthesizer(store, 1)
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips:     map[string][]models.Trip{tripKey(models.Weekday, ""): {busTrip("07:00", "07:20", "1")}},
	}
	_, err := s.Synthesize(ctx, src, busSelection())
	require.NoError(t, err)

	failing := &fakeSource{calendarErr: errors.New("boom")}
	sel := busSelection()
	sel.Refresh = true
	result, err := s.Synthesize(ctx, failing, sel)
	require.NoError(t, err)
	assert.Empty(t, result.Calendars)
	assert.Len(t, LoadHour(ctx, store, kvstore.Go1, 1, models.Weekday, 7), 1)
}

func TestSynthesizeIsolatesCalendarFailures(t *testing.T) {
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday, models.Saturday},
		trips:     map[string][]models.Trip{tripKey(models.Weekday, ""): {busTrip("07:00", "07:20", "1")}},
		errs:      map[string]error{tripKey(models.Saturday, ""): errors.New("timeout")},
	}
	result, err := NewSynthesizer(kvstore.NewMemory(), 2).Synthesize(context.Background(), src, busSelection())
	require.NoError(t, err)
	assert.Len(t, result.Timetables[models.Weekday], 1)
	assert.Empty(t, result.Timetables[models.Saturday])
	assert.Equal(t, []models.CalendarType{models.Weekday, models.Saturday}, result.Calendars)
}

func railSelection() Selection {
	tokyo := models.Stop{Code: "odpt.Station:Sample.Loop.Tokyo", Name: "Tokyo"}
	ueno := models.Stop{Code: "odpt.Station:Sample.Loop.Ueno", Name: "Ueno"}
	line := models.Line{
		Code:                "odpt.Railway:Sample.Loop",
		Kind:                models.KindRailway,
		OperatorCode:        "Sample",
		AscendingDirection:  "odpt.RailDirection:OuterLoop",
		DescendingDirection: "odpt.RailDirection:InnerLoop",
	}
	return Selection{Route: kvstore.Back2, LineIndex: 3, Line: &line, Departure: &tokyo, Arrival: &ueno}
}

func railTrip(dep, arr, number string) models.Trip {
	return models.Trip{
		Events: []models.StopEvent{
			{StopCode: "odpt.Station:Sample.Loop.Tokyo", DepartureTime: dep},
			{StopCode: "odpt.Station:Sample.Loop.Ueno", ArrivalTime: arr},
		},
		Train: &models.TrainTime{TrainNumber: number, TrainType: "Local"},
	}
}

func TestSynthesizeLoopLineKeepsFasterDirection(t *testing.T) {
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips: map[string][]models.Trip{
			tripKey(models.Weekday, "odpt.RailDirection:OuterLoop"): {
				railTrip("07:00", "07:50", "O1"),
				railTrip("08:00", "08:50", "O2"),
			},
			tripKey(models.Weekday, "odpt.RailDirection:InnerLoop"): {
				railTrip("07:05", "07:15", "I1"),
			},
		},
	}
	result, err := NewSynthesizer(kvstore.NewMemory(), 1).Synthesize(context.Background(), src, railSelection())
	require.NoError(t, err)
	entries := result.Timetables[models.Weekday]
	require.Len(t, entries, 1)
	assert.Equal(t, "I1", entries[0].Train.TrainNumber)
	assert.Equal(t, 10, entries[0].RideTimeMinutes)
}

func TestSynthesizeLoopLineTieKeepsAscending(t *testing.T) {
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips: map[string][]models.Trip{
			tripKey(models.Weekday, "odpt.RailDirection:OuterLoop"): {railTrip("07:00", "07:10", "O1")},
			tripKey(models.Weekday, "odpt.RailDirection:InnerLoop"): {railTrip("07:05", "07:15", "I1")},
		},
		errs: map[string]error{},
	}
	result, err := NewSynthesizer(kvstore.NewMemory(), 1).Synthesize(context.Background(), src, railSelection())
	require.NoError(t, err)
	require.Len(t, result.Timetables[models.Weekday], 1)
	assert.Equal(t, "O1", result.Timetables[models.Weekday][0].Train.TrainNumber)
}

func TestSynthesizeDirectionFailureFallsBackToOther(t *testing.T) {
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips: map[string][]models.Trip{
			tripKey(models.Weekday, "odpt.RailDirection:InnerLoop"): {railTrip("07:05", "07:45", "I1")},
		},
		errs: map[string]error{
			tripKey(models.Weekday, "odpt.RailDirection:OuterLoop"): errors.New("403"),
		},
	}
	result, err := NewSynthesizer(kvstore.NewMemory(), 1).Synthesize(context.Background(), src, railSelection())
	require.NoError(t, err)
	require.Len(t, result.Timetables[models.Weekday], 1)
	assert.Equal(t, "I1", result.Timetables[models.Weekday][0].Train.TrainNumber)
}

// gatedStore pauses the first Remove until release is closed
type gatedStore struct {
	*kvstore.Memory
	once    sync.Once
	cleared chan struct{}
	release chan struct{}
}

func (g *gatedStore) Remove(ctx context.Context, key string) error {
	err := g.Memory.Remove(ctx, key)
	g.once.Do(func() {
		close(g.cleared)
		<-g.release
	})
	return err
}

func TestStoredWaitsForConcurrentSynthesis(t *testing.T) {
	ctx := context.Background()
	mem := kvstore.NewMemory()
	old := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips:     map[string][]models.Trip{tripKey(models.Weekday, ""): {busTrip("07:00", "07:15", "1")}},
	}
	_, err := NewSynthesizer(mem, 1).Synthesize(ctx, old, busSelection())
	require.NoError(t, err)

	gated := &gatedStore{Memory: mem, cleared: make(chan struct{}), release: make(chan struct{})}
	synth := NewSynthesizer(gated, 1)
	sel := busSelection()
	sel.Refresh = true
	fresh := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips:     map[string][]models.Trip{tripKey(models.Weekday, ""): {busTrip("07:30", "07:45", "2")}},
	}

	written := make(chan error, 1)
	go func() {
		_, err := synth.Synthesize(ctx, fresh, sel)
		written <- err
	}()
	<-gated.cleared

	read := make(chan Result, 1)
	go func() { read <- synth.Stored(ctx, kvstore.Go1, 1) }()
	select {
	case r := <-read:
		t.Fatalf("read returned while the slot was half cleared: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.release)
	require.NoError(t, <-written)
	r := <-read
	require.Equal(t, []models.CalendarType{models.Weekday}, r.Calendars)
	require.Len(t, r.Timetables[models.Weekday], 1)
	assert.Equal(t, "07:30", r.Timetables[models.Weekday][0].DepartureTime)
}

func TestLockRouteExcludesSynthesis(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemory()
	synth := NewSynthesizer(store, 1)
	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips:     map[string][]models.Trip{tripKey(models.Weekday, ""): {busTrip("07:00", "07:15", "1")}},
	}

	unlock := synth.LockRoute(kvstore.Go1)
	done := make(chan struct{})
	go func() {
		synth.Synthesize(ctx, src, busSelection())
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("synthesis wrote while the route was locked")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, store.Contains(ctx, kvstore.CalendarTypesKey(kvstore.Go1, 1)))

	unlock()
	<-done
	assert.True(t, store.Contains(ctx, kvstore.CalendarTypesKey(kvstore.Go1, 1)))
}

func TestSynthesizeLogsRideTimeSpread(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	src := &fakeSource{
		calendars: []models.CalendarType{models.Weekday},
		trips: map[string][]models.Trip{tripKey(models.Weekday, ""): {
			busTrip("07:00", "07:10", "1"),
			busTrip("08:00", "08:20", "2"),
		}},
	}
	_, err := NewSynthesizer(kvstore.NewMemory(), 1).Synthesize(context.Background(), src, busSelection())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "wrote 2 entries under 1 calendars, ride 15.0±5.0 min")
}
