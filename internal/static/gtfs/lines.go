package gtfs

import (
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// variant is one direction of a route: a distinct (headsign, direction_id)
// pair, or the (first stop, last stop) pair of trips that have neither
type variant struct {
	headsign    string
	directionID *int
	firstStopID string
	lastStopID  string
	trips       []Trip
}

func (v *variant) key() string {
	dir := ""
	if v.directionID != nil {
		dir = strconv.Itoa(*v.directionID)
	}
	return v.headsign + "\x00" + dir + "\x00" + v.firstStopID + "\x00" + v.lastStopID
}

// suffix is the part of the line code after "routeId_"
func (v *variant) suffix() string {
	switch {
	case v.directionID != nil:
		return strconv.Itoa(*v.directionID)
	case v.headsign != "":
		return v.headsign
	}
	return v.firstStopID + "|" + v.lastStopID
}

// lessVariant orders by direction_id (missing last), headsign, first stop,
// last stop
func lessVariant(a, b *variant) bool {
	switch {
	case a.directionID != nil && b.directionID == nil:
		return true
	case a.directionID == nil && b.directionID != nil:
		return false
	case a.directionID != nil && *a.directionID != *b.directionID:
		return *a.directionID < *b.directionID
	}
	if a.headsign != b.headsign {
		return a.headsign < b.headsign
	}
	if a.firstStopID != b.firstStopID {
		return a.firstStopID < b.firstStopID
	}
	return a.lastStopID < b.lastStopID
}

// routeVariants groups a route's trips into direction variants
func routeVariants(trips []Trip, endpoints map[string]Endpoint) []*variant {
	byKey := make(map[string]*variant)
	var variants []*variant
	for _, trip := range trips {
		v := &variant{headsign: trip.TripHeadsign, directionID: trip.DirectionID}
		if v.headsign == "" && v.directionID == nil {
			e := endpoints[trip.TripID]
			v.firstStopID, v.lastStopID = e.FirstStopID, e.LastStopID
		}
		if existing, ok := byKey[v.key()]; ok {
			existing.trips = append(existing.trips, trip)
			continue
		}
		v.trips = []Trip{trip}
		byKey[v.key()] = v
		variants = append(variants, v)
	}
	sort.SliceStable(variants, func(i, j int) bool { return lessVariant(variants[i], variants[j]) })
	return variants
}

// variantCodes builds "routeId_<suffix>" codes. When two variants share a
// direction_id the headsign is appended to keep codes unique.
func variantCodes(routeID string, variants []*variant) []string {
	counts := make(map[string]int)
	for _, v := range variants {
		counts[v.suffix()]++
	}
	codes := make([]string, len(variants))
	for i, v := range variants {
		suffix := v.suffix()
		if counts[suffix] > 1 && v.directionID != nil && v.headsign != "" {
			suffix += "_" + v.headsign
		}
		codes[i] = routeID + "_" + suffix
	}
	return codes
}

// representative picks the trip with the most stops, lowest trip_id on ties
func representative(trips []Trip, endpoints map[string]Endpoint) (Trip, bool) {
	var best Trip
	found := false
	for _, t := range trips {
		if !found {
			best, found = t, true
			continue
		}
		bc, tc := endpoints[best.TripID].StopCount, endpoints[t.TripID].StopCount
		if tc > bc || (tc == bc && t.TripID < best.TripID) {
			best = t
		}
	}
	return best, found
}

type pendingLine struct {
	line    models.Line
	repTrip string
	hasRep  bool
	split   [2]string
}

// deriveLines turns routes and trips into lines, one per direction variant.
// stop_times is streamed twice: once for trip endpoints, once for the stop
// sequences of each variant's representative trip.
func deriveLines(f *Feed) ([]models.Line, map[string][]Trip, error) {
	endpoints := make(map[string]Endpoint)
	err := streamFile(f.Dir, "stop_times.txt", func(row Row) error {
		if st, ok := parseStopTime(row); ok {
			addEndpoint(endpoints, st)
		}
		return nil
	})
	if err != nil {
		log.Printf("Warning: %s stop_times unreadable, lines will have no stops: %v", f.Operator.Code, err)
	}

	tripsByRoute := make(map[string][]Trip)
	for _, t := range f.Trips {
		tripsByRoute[t.RouteID] = append(tripsByRoute[t.RouteID], t)
	}

	var pending []pendingLine
	lineTrips := make(map[string][]Trip)
	wanted := make(map[string]bool)

	for _, route := range f.Routes {
		rawName := route.RouteShortName
		nameField := "route_short_name"
		if rawName == "" {
			rawName, nameField = route.RouteLongName, "route_long_name"
		}
		if rawName == "" {
			continue
		}

		base := models.Line{
			Kind:         f.Operator.Kind,
			OperatorCode: f.Operator.Code,
			LineCode:     route.RouteID,
			RouteID:      route.RouteID,
		}
		if route.RouteColor != "" {
			base.LineColor = "#" + route.RouteColor
		}
		original := Normalize(rawName)
		localized := Normalize(f.Translator.Translate("routes", nameField, route.RouteID, rawName))
		base.Name = localized
		base.Title = models.LocalizedTitle{Primary: original}
		if localized != original {
			base.Title.Secondary = localized
		}

		var split [2]string
		if dep, dest, ok := SplitLongName(route.RouteLongName); ok {
			split = [2]string{Normalize(dep), Normalize(dest)}
		}

		variants := routeVariants(tripsByRoute[route.RouteID], endpoints)
		if len(variants) == 0 {
			line := base
			line.Code = route.RouteID
			lineTrips[line.Code] = nil
			pending = append(pending, pendingLine{line: line, split: split})
			continue
		}

		codes := []string{route.RouteID}
		if len(variants) > 1 {
			codes = variantCodes(route.RouteID, variants)
		}
		for i, v := range variants {
			line := base
			line.Code = codes[i]
			line.DirectionID = v.directionID
			line.Headsign = Normalize(v.headsign)

			p := pendingLine{line: line, split: split}
			if rep, ok := representative(v.trips, endpoints); ok {
				p.repTrip, p.hasRep = rep.TripID, true
				wanted[rep.TripID] = true
				if v.headsign != "" {
					p.line.Destination = Normalize(f.Translator.Translate("trips", "trip_headsign", rep.TripID, v.headsign))
				}
			}
			lineTrips[line.Code] = v.trips
			pending = append(pending, p)
		}
	}

	sequences := make(map[string][]StopTime)
	if len(wanted) > 0 && err == nil {
		sequences, err = tripStopTimes(f.Dir, wanted)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read stop sequences of %s: %w", f.Operator.Code, err)
		}
	}

	lines := make([]models.Line, 0, len(pending))
	for _, p := range pending {
		line := p.line
		var stops []models.Stop
		if p.hasRep {
			stops = f.buildStops(line.Code, sequences[p.repTrip])
		}
		if line.Kind == models.KindBus {
			line.BusStopOrder = stops
		} else {
			line.StopOrder = stops
		}

		if len(stops) > 0 {
			line.Departure = stops[0].Name
			if line.Destination == "" {
				line.Destination = stops[len(stops)-1].Name
			}
		}
		if line.Departure == "" {
			line.Departure = p.split[0]
		}
		if line.Destination == "" {
			line.Destination = p.split[1]
		}
		lines = append(lines, line)
	}
	return lines, lineTrips, nil
}

func (f *Feed) buildStops(lineCode string, seq []StopTime) []models.Stop {
	sortStopTimes(seq)
	stops := make([]models.Stop, 0, len(seq))
	for i, st := range seq {
		s := f.Stops[st.StopID]
		stops = append(stops, models.Stop{
			Code:     st.StopID,
			Name:     f.stopName(st.StopID),
			Index:    i,
			LineCode: lineCode,
			Note:     s.PlatformCode,
			PoleID:   s.ParentStation,
		})
	}
	return stops
}
