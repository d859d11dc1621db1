// Package timetable turns a line and a departure/arrival stop selection into
// hour-bucketed timetables in the key-value store.
package timetable

import (
	"context"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// Source yields the raw timetables of a line. The ODPT API source and the
// GTFS feed source both implement it.
type Source interface {
	// CalendarTypes lists the calendars the line runs under
	CalendarTypes(ctx context.Context, line models.Line) ([]models.CalendarType, error)

	// Timetables returns the trips of the line for one calendar. direction
	// is a railway direction id, or empty when the source is not split by
	// direction.
	Timetables(ctx context.Context, line models.Line, direction string, calendar models.CalendarType) ([]models.Trip, error)
}

// queryDirections lists the directions to fetch for a line. Bus lines and
// railways without direction ids are fetched once.
func queryDirections(line models.Line) []string {
	if line.Kind == models.KindBus {
		return []string{""}
	}
	var dirs []string
	for _, d := range []string{line.AscendingDirection, line.DescendingDirection} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) == 0 {
		return []string{""}
	}
	return dirs
}
