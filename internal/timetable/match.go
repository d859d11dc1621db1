package timetable

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mytimetablemaker/transit-sync/internal/metrics"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// MatchTrips extracts one entry per trip that calls at departure and then at
// arrival. Trips missing either stop, or whose arrival is not after the
// departure, are dropped.
func MatchTrips(trips []models.Trip, departure, arrival models.Stop) []models.TransportationTime {
	var out []models.TransportationTime
	for _, trip := range trips {
		if entry, ok := matchTrip(trip, departure, arrival); ok {
			out = append(out, entry)
		}
	}
	return out
}

func matchTrip(trip models.Trip, departure, arrival models.Stop) (models.TransportationTime, bool) {
	di := findStop(trip.Events, departure)
	ai := findStop(trip.Events, arrival)
	if di < 0 || ai < 0 {
		return models.TransportationTime{}, false
	}

	depTime := trip.Events[di].Departure()
	arrTime := trip.Events[ai].Arrival()
	if depTime == "" || arrTime == "" {
		return models.TransportationTime{}, false
	}

	entry, err := models.NewTransportationTime(depTime, arrTime)
	if err != nil {
		return models.TransportationTime{}, false
	}
	if trip.Train != nil {
		train := *trip.Train
		entry.Train = &train
	}
	if trip.Bus != nil {
		bus := *trip.Bus
		entry.Bus = &bus
	}
	return entry, true
}

// findStop returns the index of the first event at stop. An exact code (or
// pole id) match wins; otherwise the first event sharing the stop's base id.
func findStop(events []models.StopEvent, stop models.Stop) int {
	for i, e := range events {
		if e.StopCode == stop.Code || (stop.PoleID != "" && e.StopCode == stop.PoleID) {
			return i
		}
	}
	base := baseStopID(stop.Code)
	if base == "" {
		return -1
	}
	for i, e := range events {
		if baseStopID(e.StopCode) == base {
			return i
		}
	}
	return -1
}

// baseStopID strips the namespace ("odpt.BusstopPole:") and trailing numeric
// pole segments, so "odpt.BusstopPole:Toei.Shibuya.1234.2" and
// "odpt.BusstopPole:Toei.Shibuya.1234.5" share "Toei.Shibuya", and GTFS
// "1234_01" becomes "1234".
func baseStopID(code string) string {
	if i := strings.LastIndex(code, ":"); i >= 0 {
		code = code[i+1:]
	}
	segs := strings.FieldsFunc(code, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for len(segs) > 1 && isNumeric(segs[len(segs)-1]) {
		segs = segs[:len(segs)-1]
	}
	return strings.Join(segs, ".")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// resolveDirections picks the result set of a line queried in several
// directions. On a loop line both directions reach the pair; the one with
// the lower mean ride time is kept, the earlier (ascending) one on a tie.
func resolveDirections(sets [][]models.TransportationTime) []models.TransportationTime {
	var best []models.TransportationTime
	var bestStats *metrics.RideTimeStats
	for _, set := range sets {
		if len(set) == 0 {
			continue
		}
		stats := rideTimeStats(set)
		if bestStats == nil || stats.Less(bestStats) {
			best, bestStats = set, stats
		}
	}
	return best
}

func rideTimeStats(entries []models.TransportationTime) *metrics.RideTimeStats {
	stats := &metrics.RideTimeStats{}
	for _, e := range entries {
		stats.Add(e.RideTimeMinutes)
	}
	return stats
}

// sortEntries orders entries by departure, then arrival. Times are
// zero-padded so string order is clock order.
func sortEntries(entries []models.TransportationTime) []models.TransportationTime {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.DepartureTime != b.DepartureTime {
			return a.DepartureTime < b.DepartureTime
		}
		if a.ArrivalTime != b.ArrivalTime {
			return a.ArrivalTime < b.ArrivalTime
		}
		return a.Identity() < b.Identity()
	})
	return entries
}
