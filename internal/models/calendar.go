package models

import (
	"sort"
	"strings"
)

// calendarPrefix is the ODPT namespace of calendar identifiers
const calendarPrefix = "odpt.Calendar:"

// displaySeparator joins a Specific calendar's raw tag and its explicit
// display type in String: "S1@weekday"
const displaySeparator = "@"

// CalendarType is a day-type classification under which a timetable applies.
// It is either one of the enumerated types below or an operator-defined
// Specific calendar carrying its raw tag. The zero value is invalid.
type CalendarType struct {
	name     string
	specific bool
	display  DisplayCalendarType // explicit display type of a Specific calendar
}

var (
	Weekday         = CalendarType{name: "Weekday"}
	Monday          = CalendarType{name: "Monday"}
	Tuesday         = CalendarType{name: "Tuesday"}
	Wednesday       = CalendarType{name: "Wednesday"}
	Thursday        = CalendarType{name: "Thursday"}
	Friday          = CalendarType{name: "Friday"}
	Saturday        = CalendarType{name: "Saturday"}
	SaturdayHoliday = CalendarType{name: "SaturdayHoliday"}
	Sunday          = CalendarType{name: "Sunday"}
	Holiday         = CalendarType{name: "Holiday"}
)

// enumerated lists the fixed calendar types in their canonical order
var enumerated = []CalendarType{
	Weekday, Monday, Tuesday, Wednesday, Thursday, Friday,
	Saturday, SaturdayHoliday, Sunday, Holiday,
}

// Specific returns an operator-defined calendar type whose display type is
// inferred from its name
func Specific(raw string) CalendarType {
	return CalendarType{name: raw, specific: true}
}

// SpecificAs returns an operator-defined calendar type with a known display
// type, such as a GTFS service classified by its running days
func SpecificAs(raw string, display DisplayCalendarType) CalendarType {
	return CalendarType{name: raw, specific: true, display: display}
}

// ParseCalendarType maps a raw calendar identifier ("odpt.Calendar:Weekday",
// "Weekday", "odpt.Calendar:Specific.Toei.Holiday", a GTFS service id, ...)
// to a CalendarType. Unknown identifiers become Specific.
func ParseCalendarType(raw string) CalendarType {
	raw = strings.TrimSpace(raw)
	name := strings.TrimPrefix(raw, calendarPrefix)
	for _, c := range enumerated {
		if c.name == name {
			return c
		}
	}
	if i := strings.LastIndex(raw, displaySeparator); i > 0 {
		switch d := DisplayCalendarType(raw[i+len(displaySeparator):]); d {
		case DisplayWeekday, DisplaySaturday, DisplayHoliday:
			return SpecificAs(raw[:i], d)
		}
	}
	return Specific(raw)
}

// IsZero reports whether c is the zero value
func (c CalendarType) IsZero() bool {
	return c.name == ""
}

// IsSpecific reports whether c is an operator-defined calendar
func (c CalendarType) IsSpecific() bool {
	return c.specific
}

// String returns the identifier used for API queries and persisted sets.
// ParseCalendarType(c.String()) == c.
func (c CalendarType) String() string {
	if c.specific {
		if c.display != "" {
			return c.name + displaySeparator + string(c.display)
		}
		return c.name
	}
	return calendarPrefix + c.name
}

// Tag returns the short form embedded in key-value keys
func (c CalendarType) Tag() string {
	return strings.TrimPrefix(c.String(), calendarPrefix)
}

// Display returns the coarse classification used to merge calendar types
func (c CalendarType) Display() DisplayCalendarType {
	if !c.specific {
		switch c {
		case Weekday, Monday, Tuesday, Wednesday, Thursday, Friday:
			return DisplayWeekday
		case Saturday:
			return DisplaySaturday
		default:
			return DisplayHoliday
		}
	}
	if c.display != "" {
		return c.display
	}

	lower := strings.ToLower(c.name)
	holiday := strings.Contains(lower, "holiday") || strings.Contains(lower, "sunday") ||
		strings.Contains(c.name, "休日") || strings.Contains(c.name, "日曜") || strings.Contains(c.name, "祝")
	switch {
	case strings.Contains(lower, "weekday") || strings.Contains(c.name, "平日"):
		return DisplayWeekday
	case !holiday && (strings.Contains(lower, "saturday") || strings.Contains(c.name, "土曜")):
		return DisplaySaturday
	default:
		return DisplayHoliday
	}
}

// order returns the sort rank: enumerated types first, Specific after
func (c CalendarType) order() int {
	for i, e := range enumerated {
		if e == c {
			return i
		}
	}
	return len(enumerated)
}

// Less orders calendar types deterministically
func (c CalendarType) Less(other CalendarType) bool {
	if c.order() != other.order() {
		return c.order() < other.order()
	}
	if c.name != other.name {
		return c.name < other.name
	}
	return c.display < other.display
}

// SortCalendarTypes sorts in place and returns the slice
func SortCalendarTypes(types []CalendarType) []CalendarType {
	sort.Slice(types, func(i, j int) bool { return types[i].Less(types[j]) })
	return types
}

// DisplayCalendarType is the UI-level grouping of calendar types
type DisplayCalendarType string

const (
	DisplayWeekday  DisplayCalendarType = "weekday"
	DisplaySaturday DisplayCalendarType = "saturday"
	DisplayHoliday  DisplayCalendarType = "holiday"
)
