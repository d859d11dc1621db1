package gtfs

import (
	"io"
	"log"
	"sort"
	"strconv"
)

func parseRoutes(dir string) ([]Route, error) {
	rows, err := parseFile(dir, "routes.txt")
	if err != nil {
		return nil, err
	}

	routes := make([]Route, 0, len(rows))
	for _, row := range rows {
		routeType, _ := strconv.Atoi(row.Get("route_type"))
		routes = append(routes, Route{
			RouteID:        row.Get("route_id"),
			AgencyID:       row.Get("agency_id"),
			RouteShortName: row.Get("route_short_name"),
			RouteLongName:  row.Get("route_long_name"),
			RouteType:      routeType,
			RouteColor:     row.Get("route_color"),
		})
	}
	return routes, nil
}

func parseStops(dir string) (map[string]Stop, error) {
	rows, err := parseFile(dir, "stops.txt")
	if err != nil {
		return nil, err
	}

	stops := make(map[string]Stop, len(rows))
	for _, row := range rows {
		id := row.Get("stop_id")
		stops[id] = Stop{
			StopID:        id,
			StopCode:      row.Get("stop_code"),
			StopName:      row.Get("stop_name"),
			PlatformCode:  row.Get("platform_code"),
			ParentStation: row.Get("parent_station"),
		}
	}
	return stops, nil
}

func parseTrips(dir string) ([]Trip, error) {
	rows, err := parseFile(dir, "trips.txt")
	if err != nil {
		return nil, err
	}

	trips := make([]Trip, 0, len(rows))
	for _, row := range rows {
		trip := Trip{
			RouteID:       row.Get("route_id"),
			ServiceID:     row.Get("service_id"),
			TripID:        row.Get("trip_id"),
			TripHeadsign:  row.Get("trip_headsign"),
			TripShortName: row.Get("trip_short_name"),
		}
		if raw := row.Get("direction_id"); raw != "" {
			if d, err := strconv.Atoi(raw); err == nil {
				trip.DirectionID = &d
			}
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

func parseServices(dir string) ([]Service, error) {
	rows, err := parseFile(dir, "calendar.txt")
	if err != nil {
		return nil, err
	}

	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	services := make([]Service, 0, len(rows))
	for _, row := range rows {
		s := Service{ServiceID: row.Get("service_id")}
		for i, day := range days {
			s.Days[i] = row.Get(day) == "1"
		}
		services = append(services, s)
	}
	return services, nil
}

// feedLanguage reads feed_info.txt, falling back to agency.txt
func feedLanguage(dir string) string {
	if rows, err := parseFile(dir, "feed_info.txt"); err == nil {
		for _, row := range rows {
			if lang := row.Get("feed_lang"); lang != "" {
				return lang
			}
		}
	}
	if rows, err := parseFile(dir, "agency.txt"); err == nil {
		for _, row := range rows {
			if lang := row.Get("agency_lang"); lang != "" {
				return lang
			}
		}
	}
	return ""
}

// parseStopTime maps a stop_times row; rows without a usable sequence are
// reported as !ok
func parseStopTime(row Row) (StopTime, bool) {
	seq, err := strconv.Atoi(row.Get("stop_sequence"))
	if err != nil {
		return StopTime{}, false
	}
	return StopTime{
		TripID:        row.Get("trip_id"),
		ArrivalTime:   row.Get("arrival_time"),
		DepartureTime: row.Get("departure_time"),
		StopID:        row.Get("stop_id"),
		StopSequence:  seq,
	}, true
}

// TripEndpoints streams stop_times and returns the first and last stop of
// every trip. Only O(trips) state is kept.
func TripEndpoints(r io.Reader) (map[string]Endpoint, error) {
	endpoints := make(map[string]Endpoint)
	err := ParseCSVStreaming(r, func(row Row) error {
		if st, ok := parseStopTime(row); ok {
			addEndpoint(endpoints, st)
		}
		return nil
	})
	return endpoints, err
}

func addEndpoint(endpoints map[string]Endpoint, st StopTime) {
	e, seen := endpoints[st.TripID]
	if !seen {
		endpoints[st.TripID] = Endpoint{
			FirstStopID: st.StopID, LastStopID: st.StopID,
			FirstSeq: st.StopSequence, LastSeq: st.StopSequence,
			StopCount: 1,
		}
		return
	}
	e.StopCount++
	if st.StopSequence < e.FirstSeq {
		e.FirstSeq, e.FirstStopID = st.StopSequence, st.StopID
	}
	if st.StopSequence > e.LastSeq {
		e.LastSeq, e.LastStopID = st.StopSequence, st.StopID
	}
	endpoints[st.TripID] = e
}

// tripStopTimes streams stop_times and collects the rows of the wanted trips
func tripStopTimes(dir string, wanted map[string]bool) (map[string][]StopTime, error) {
	out := make(map[string][]StopTime, len(wanted))
	err := streamFile(dir, "stop_times.txt", func(row Row) error {
		tripID := row.Get("trip_id")
		if !wanted[tripID] {
			return nil
		}
		if st, ok := parseStopTime(row); ok {
			out[tripID] = append(out[tripID], st)
		} else {
			log.Printf("Warning: skipping stop_times row of trip %s without stop_sequence", tripID)
		}
		return nil
	})
	return out, err
}

func sortStopTimes(seq []StopTime) {
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].StopSequence < seq[j].StopSequence })
}
