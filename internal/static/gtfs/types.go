package gtfs

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteType      int
	RouteColor     string
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID        string
	StopCode      string
	StopName      string
	PlatformCode  string
	ParentStation string
}

// Trip represents a trip from trips.txt. DirectionID is nil when the
// column is absent or empty.
type Trip struct {
	RouteID       string
	ServiceID     string
	TripID        string
	TripHeadsign  string
	TripShortName string
	DirectionID   *int
}

// StopTime represents a stop time from stop_times.txt
type StopTime struct {
	TripID        string
	ArrivalTime   string
	DepartureTime string
	StopID        string
	StopSequence  int
}

// Service represents a row of calendar.txt
type Service struct {
	ServiceID string
	Days      [7]bool // Monday .. Sunday
}

// Endpoint is the first and last stop of a trip by stop_sequence
type Endpoint struct {
	FirstStopID string
	LastStopID  string
	FirstSeq    int
	LastSeq     int
	StopCount   int
}
