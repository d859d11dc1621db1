package timetable

import "github.com/mytimetablemaker/transit-sync/internal/models"

// merged is the outcome of folding raw calendars into display groups
type merged struct {
	Sources    []models.CalendarType // every raw type that was fetched
	Calendars  []models.CalendarType // representatives, in display order
	Timetables map[models.CalendarType][]models.TransportationTime
}

// mergeCalendars groups raw calendar results by display type. A lone type is
// kept as is; a group of several is unioned, de-duplicated and sorted under
// one representative. calendars must be sorted.
func mergeCalendars(calendars []models.CalendarType, results map[models.CalendarType][]models.TransportationTime) merged {
	out := merged{
		Sources:    calendars,
		Timetables: make(map[models.CalendarType][]models.TransportationTime),
	}

	var order []models.DisplayCalendarType
	groups := make(map[models.DisplayCalendarType][]models.CalendarType)
	for _, c := range calendars {
		d := c.Display()
		if _, ok := groups[d]; !ok {
			order = append(order, d)
		}
		groups[d] = append(groups[d], c)
	}

	for _, d := range order {
		group := groups[d]
		if len(group) == 1 {
			out.Calendars = append(out.Calendars, group[0])
			out.Timetables[group[0]] = sortEntries(results[group[0]])
			continue
		}

		rep := representative(group)
		seen := make(map[string]bool)
		var union []models.TransportationTime
		for _, c := range group {
			for _, e := range results[c] {
				id := e.Identity()
				if seen[id] {
					continue
				}
				seen[id] = true
				union = append(union, e)
			}
		}
		out.Calendars = append(out.Calendars, rep)
		out.Timetables[rep] = sortEntries(union)
	}
	return out
}

// representative prefers the first operator-specific type of a group, else
// the first enumerated one
func representative(group []models.CalendarType) models.CalendarType {
	for _, c := range group {
		if c.IsSpecific() {
			return c
		}
	}
	return group[0]
}
