package models

import (
	"fmt"
	"strconv"
	"strings"
)

// BusTime is the bus-specific payload of a timetable entry
type BusTime struct {
	BusNumber    string `json:"busNumber,omitempty"`
	RoutePattern string `json:"routePattern,omitempty"`
}

// TrainTime is the train-specific payload of a timetable entry
type TrainTime struct {
	TrainNumber string `json:"trainNumber"`
	TrainType   string `json:"trainType"`
}

// TransportationTime is one departure/arrival pair between the selected stops.
// Exactly one of Bus or Train is set.
type TransportationTime struct {
	DepartureTime   string     `json:"departureTime"` // HH:MM
	ArrivalTime     string     `json:"arrivalTime"`   // HH:MM
	RideTimeMinutes int        `json:"rideTime"`
	Bus             *BusTime   `json:"bus,omitempty"`
	Train           *TrainTime `json:"train,omitempty"`
}

// NewTransportationTime builds an entry from two clock strings ("HH:MM" or
// "HH:MM:SS"). It fails when either time is malformed or when arrival is not
// strictly after departure; times are never wrapped at midnight.
func NewTransportationTime(departure, arrival string) (TransportationTime, error) {
	dep, err := ParseClock(departure)
	if err != nil {
		return TransportationTime{}, err
	}
	arr, err := ParseClock(arrival)
	if err != nil {
		return TransportationTime{}, err
	}
	if arr <= dep {
		return TransportationTime{}, fmt.Errorf("arrival %s is not after departure %s", arrival, departure)
	}
	return TransportationTime{
		DepartureTime:   FormatClock(dep),
		ArrivalTime:     FormatClock(arr),
		RideTimeMinutes: arr - dep,
	}, nil
}

// Hour returns the departure hour used for bucketing
func (t TransportationTime) Hour() int {
	m, err := ParseClock(t.DepartureTime)
	if err != nil {
		return 0
	}
	return m / 60
}

// TypeLabel returns the train type or the bus route pattern
func (t TransportationTime) TypeLabel() string {
	switch {
	case t.Train != nil:
		return t.Train.TrainType
	case t.Bus != nil:
		return t.Bus.RoutePattern
	}
	return ""
}

// Identity returns a key under which two entries are considered duplicates
func (t TransportationTime) Identity() string {
	var b strings.Builder
	b.WriteString(t.DepartureTime)
	b.WriteByte('|')
	b.WriteString(t.ArrivalTime)
	if t.Train != nil {
		b.WriteString("|T|" + t.Train.TrainNumber + "|" + t.Train.TrainType)
	}
	if t.Bus != nil {
		b.WriteString("|B|" + t.Bus.BusNumber + "|" + t.Bus.RoutePattern)
	}
	return b.String()
}

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes after midnight.
// Hours beyond 23 (GTFS after-midnight service) are accepted.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes after midnight as zero-padded "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
