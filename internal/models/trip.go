package models

// StopEvent is one stop call of a trip. Either time may be empty when the
// source only publishes one side (first / last stop).
type StopEvent struct {
	StopCode      string
	DepartureTime string
	ArrivalTime   string
}

// Departure returns the time a passenger boards here
func (e StopEvent) Departure() string {
	if e.DepartureTime != "" {
		return e.DepartureTime
	}
	return e.ArrivalTime
}

// Arrival returns the time a passenger alights here
func (e StopEvent) Arrival() string {
	if e.ArrivalTime != "" {
		return e.ArrivalTime
	}
	return e.DepartureTime
}

// Trip is one raw timetable run: ordered stop events plus the train or bus
// payload copied into every matched TransportationTime
type Trip struct {
	Events []StopEvent
	Train  *TrainTime
	Bus    *BusTime
}
