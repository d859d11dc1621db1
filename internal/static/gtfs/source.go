package gtfs

import (
	"context"
	"fmt"

	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// TimetableSource serves timetables of one operator straight from its GTFS
// trips and stop_times
type TimetableSource struct {
	pipeline *Pipeline
	op       config.Operator
}

// Source returns the timetable source of op
func (p *Pipeline) Source(op config.Operator) *TimetableSource {
	return &TimetableSource{pipeline: p, op: op}
}

func (s *TimetableSource) feed(ctx context.Context) (*Feed, error) {
	feed, err := s.pipeline.Feed(ctx, s.op)
	if err != nil {
		return nil, err
	}
	if _, err := feed.Lines(); err != nil {
		return nil, err
	}
	return feed, nil
}

// CalendarTypes returns the calendars of the line's trips
func (s *TimetableSource) CalendarTypes(ctx context.Context, line models.Line) ([]models.CalendarType, error) {
	feed, err := s.feed(ctx)
	if err != nil {
		return nil, err
	}
	return timetableCalendars(feed, line)
}

// Timetables returns the trips of the line running under calendar. GTFS
// lines are already split by direction, so direction is ignored.
func (s *TimetableSource) Timetables(ctx context.Context, line models.Line, _ string, calendar models.CalendarType) ([]models.Trip, error) {
	feed, err := s.feed(ctx)
	if err != nil {
		return nil, err
	}
	return timetableTrips(feed, line, calendar)
}

func lineTrips(feed *Feed, line models.Line) ([]Trip, error) {
	trips, ok := feed.TripsOf(line.Code)
	if !ok {
		return nil, fmt.Errorf("line %s not found in GTFS feed of %s", line.Code, feed.Operator.Code)
	}
	return trips, nil
}

func timetableCalendars(feed *Feed, line models.Line) ([]models.CalendarType, error) {
	trips, err := lineTrips(feed, line)
	if err != nil {
		return nil, err
	}

	seen := make(map[models.CalendarType]bool)
	var types []models.CalendarType
	for _, t := range trips {
		c := calendarOf(feed.Calendars, t.ServiceID)
		if !seen[c] {
			seen[c] = true
			types = append(types, c)
		}
	}
	return models.SortCalendarTypes(types), nil
}

func timetableTrips(feed *Feed, line models.Line, calendar models.CalendarType) ([]models.Trip, error) {
	trips, err := lineTrips(feed, line)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool)
	var selected []Trip
	for _, t := range trips {
		if calendarOf(feed.Calendars, t.ServiceID) == calendar {
			wanted[t.TripID] = true
			selected = append(selected, t)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	sequences, err := tripStopTimes(feed.Dir, wanted)
	if err != nil {
		return nil, err
	}

	out := make([]models.Trip, 0, len(selected))
	for _, t := range selected {
		seq := sequences[t.TripID]
		sortStopTimes(seq)

		events := make([]models.StopEvent, 0, len(seq))
		for _, st := range seq {
			events = append(events, models.StopEvent{
				StopCode:      st.StopID,
				DepartureTime: st.DepartureTime,
				ArrivalTime:   st.ArrivalTime,
			})
		}

		trip := models.Trip{Events: events}
		if line.Kind == models.KindBus {
			trip.Bus = &models.BusTime{BusNumber: t.TripShortName, RoutePattern: line.Name}
		} else {
			number := t.TripShortName
			if number == "" {
				number = t.TripID
			}
			trip.Train = &models.TrainTime{TrainNumber: number, TrainType: line.Name}
		}
		out = append(out, trip)
	}
	return out, nil
}
