package gtfs

import (
	"time"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// ClassifyService maps calendar.txt day flags to a calendar type:
// Monday–Friday only is Weekday, Saturday only is Saturday, Sunday only is
// Sunday, Saturday and Sunday is SaturdayHoliday, a single weekday is that
// day. Other combinations keep the service id as a Specific calendar whose
// display type follows the flags. A service with no day flags is left to
// calendar_dates.txt by serviceCalendars.
func ClassifyService(s Service) models.CalendarType {
	weekdays := 0
	single := -1
	for i := 0; i < 5; i++ {
		if s.Days[i] {
			weekdays++
			single = i
		}
	}
	sat, sun := s.Days[5], s.Days[6]

	switch {
	case weekdays == 5 && !sat && !sun:
		return models.Weekday
	case weekdays == 0 && sat && !sun:
		return models.Saturday
	case weekdays == 0 && !sat && sun:
		return models.Sunday
	case weekdays == 0 && sat && sun:
		return models.SaturdayHoliday
	case weekdays == 1 && !sat && !sun:
		return []models.CalendarType{
			models.Monday, models.Tuesday, models.Wednesday, models.Thursday, models.Friday,
		}[single]
	case weekdays > 0:
		return models.SpecificAs(s.ServiceID, models.DisplayWeekday)
	}
	return models.ParseCalendarType(s.ServiceID)
}

// ServiceDates counts the added dates of a service in calendar_dates.txt
// per day of week, Monday first
type ServiceDates [7]int

// display picks the display type with the most dates. Weekday wins ties, and
// a Saturday/Sunday tie is holiday, as for SaturdayHoliday.
func (d ServiceDates) display() (models.DisplayCalendarType, bool) {
	weekday := d[0] + d[1] + d[2] + d[3] + d[4]
	saturday, holiday := d[5], d[6]
	switch {
	case weekday == 0 && saturday == 0 && holiday == 0:
		return "", false
	case weekday >= saturday && weekday >= holiday:
		return models.DisplayWeekday, true
	case saturday > holiday:
		return models.DisplaySaturday, true
	default:
		return models.DisplayHoliday, true
	}
}

// parseServiceDates reads the added dates (exception_type 1) of
// calendar_dates.txt. A missing file yields an empty map.
func parseServiceDates(dir string) (map[string]ServiceDates, error) {
	rows, err := parseFile(dir, "calendar_dates.txt")
	if err != nil {
		return nil, err
	}

	out := make(map[string]ServiceDates)
	for _, row := range rows {
		if row.Get("exception_type") != "1" {
			continue
		}
		date, err := time.Parse("20060102", row.Get("date"))
		if err != nil {
			continue
		}
		id := row.Get("service_id")
		counts := out[id]
		counts[(int(date.Weekday())+6)%7]++
		out[id] = counts
	}
	return out, nil
}

// serviceCalendars classifies every service of the feed, from calendar.txt
// flags first and from the weekdays of calendar_dates.txt for services that
// have no flags or no calendar.txt row
func serviceCalendars(services []Service, dates map[string]ServiceDates) map[string]models.CalendarType {
	out := make(map[string]models.CalendarType, len(services)+len(dates))
	for _, s := range services {
		if s.Days != ([7]bool{}) {
			out[s.ServiceID] = ClassifyService(s)
		}
	}
	for id, counts := range dates {
		if _, ok := out[id]; ok {
			continue
		}
		if d, ok := counts.display(); ok {
			out[id] = models.SpecificAs(id, d)
		}
	}
	return out
}

// calendarOf returns the calendar of a service id. A service without running
// days in either calendar file keeps a Specific calendar named after it.
func calendarOf(calendars map[string]models.CalendarType, serviceID string) models.CalendarType {
	if c, ok := calendars[serviceID]; ok {
		return c
	}
	return models.ParseCalendarType(serviceID)
}
