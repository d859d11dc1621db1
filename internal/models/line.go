package models

// Kind distinguishes railway lines from bus lines
type Kind string

const (
	KindRailway Kind = "railway"
	KindBus     Kind = "bus"
)

// LocalizedTitle holds a display name in the primary (feed) language and an
// optional secondary language
type LocalizedTitle struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// Line represents a railway line or a bus route pattern of one operator.
// Code is unique within (OperatorCode, Kind).
type Line struct {
	Code         string         `json:"code"`
	Kind         Kind           `json:"kind"`
	Name         string         `json:"name"`
	Title        LocalizedTitle `json:"title"`
	OperatorCode string         `json:"operatorCode"`
	LineColor    string         `json:"lineColor,omitempty"`
	LineCode     string         `json:"lineCode,omitempty"`

	// Railway direction identifiers (e.g. "odpt.RailDirection:Inbound")
	AscendingDirection  string `json:"ascendingDirection,omitempty"`
	DescendingDirection string `json:"descendingDirection,omitempty"`

	// Departure / Destination are display names derived from the data source
	Departure   string `json:"departure,omitempty"`
	Destination string `json:"destination,omitempty"`

	StopOrder    []Stop `json:"stopOrder,omitempty"`    // railway
	BusStopOrder []Stop `json:"busStopOrder,omitempty"` // bus

	// GTFS-only fields
	RouteID     string `json:"routeId,omitempty"`
	DirectionID *int   `json:"directionId,omitempty"`
	Headsign    string `json:"headsign,omitempty"`
}

// Stops returns the ordered stops regardless of line kind
func (l *Line) Stops() []Stop {
	if l.Kind == KindBus {
		return l.BusStopOrder
	}
	return l.StopOrder
}

// FindStop looks up a stop of this line by code, falling back to the pole id
func (l *Line) FindStop(code string) (Stop, bool) {
	for _, s := range l.Stops() {
		if s.Code == code {
			return s, true
		}
	}
	for _, s := range l.Stops() {
		if s.PoleID != "" && s.PoleID == code {
			return s, true
		}
	}
	return Stop{}, false
}

// Stop is a station or bus stop pole at a position within a line.
// A stop is identified by (LineCode, Code): the same physical stop id can
// appear on several lines.
type Stop struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Index    int    `json:"index"`
	LineCode string `json:"lineCode"`
	Note     string `json:"note,omitempty"`
	PoleID   string `json:"poleId,omitempty"`
}

// StopKey is the identity of a stop across lines
type StopKey struct {
	LineCode string
	Code     string
}

// Key returns the stop identity
func (s Stop) Key() StopKey {
	return StopKey{LineCode: s.LineCode, Code: s.Code}
}
