package odpt

import "encoding/json"

// Localized is an ODPT multilingual title ({"ja": "...", "en": "..."})
type Localized map[string]string

// RailwayDTO is one odpt:Railway record
type RailwayDTO struct {
	SameAs              string            `json:"owl:sameAs"`
	Title               string            `json:"dc:title"`
	RailwayTitle        Localized         `json:"odpt:railwayTitle"`
	Operator            string            `json:"odpt:operator"`
	LineCode            string            `json:"odpt:lineCode"`
	Color               string            `json:"odpt:color"`
	LineColor           string            `json:"odpt:lineColor"`
	AscendingDirection  string            `json:"odpt:ascendingRailDirection"`
	DescendingDirection string            `json:"odpt:descendingRailDirection"`
	DestinationStation  string            `json:"odpt:destinationStation"`
	StationOrder        []StationOrderDTO `json:"odpt:stationOrder"`
}

// StationOrderDTO is one entry of odpt:stationOrder
type StationOrderDTO struct {
	Index        int       `json:"odpt:index"`
	Station      string    `json:"odpt:station"`
	StationTitle Localized `json:"odpt:stationTitle"`
}

// typedRecord is decoded first to filter mixed arrays by @type
type typedRecord struct {
	Type string `json:"@type"`
}

const busroutePatternType = "odpt:BusroutePattern"

// BusroutePatternDTO is one odpt:BusroutePattern record
type BusroutePatternDTO struct {
	SameAs    string                `json:"owl:sameAs"`
	Title     string                `json:"dc:title"`
	Kana      string                `json:"odpt:kana"`
	Operator  string                `json:"odpt:operator"`
	Busroute  string                `json:"odpt:busroute"`
	Pattern   string                `json:"odpt:pattern"`
	Direction string                `json:"odpt:direction"`
	Note      string                `json:"odpt:note"`
	PoleOrder []BusstopPoleOrderDTO `json:"odpt:busstopPoleOrder"`
}

// BusstopPoleOrderDTO is one entry of odpt:busstopPoleOrder
type BusstopPoleOrderDTO struct {
	Index       int    `json:"odpt:index"`
	BusstopPole string `json:"odpt:busstopPole"`
	Note        string `json:"odpt:note"`
}

// TrainTimetableDTO is one odpt:TrainTimetable record
type TrainTimetableDTO struct {
	SameAs        string                    `json:"owl:sameAs"`
	Railway       string                    `json:"odpt:railway"`
	RailDirection string                    `json:"odpt:railDirection"`
	Calendar      string                    `json:"odpt:calendar"`
	TrainNumber   string                    `json:"odpt:trainNumber"`
	TrainType     string                    `json:"odpt:trainType"`
	Objects       []TrainTimetableObjectDTO `json:"odpt:trainTimetableObject"`
}

// TrainTimetableObjectDTO is one stop call of a train. Departure rows carry
// departureStation, the terminal row carries arrivalStation.
type TrainTimetableObjectDTO struct {
	DepartureTime    string `json:"odpt:departureTime"`
	DepartureStation string `json:"odpt:departureStation"`
	ArrivalTime      string `json:"odpt:arrivalTime"`
	ArrivalStation   string `json:"odpt:arrivalStation"`
}

// BusTimetableDTO is one odpt:BusTimetable record
type BusTimetableDTO struct {
	SameAs          string                  `json:"owl:sameAs"`
	Title           string                  `json:"dc:title"`
	BusroutePattern string                  `json:"odpt:busroutePattern"`
	Calendar        string                  `json:"odpt:calendar"`
	BusNumber       string                  `json:"odpt:busNumber"`
	Objects         []BusTimetableObjectDTO `json:"odpt:busTimetableObject"`
}

// BusTimetableObjectDTO is one pole call of a bus
type BusTimetableObjectDTO struct {
	Index         int    `json:"odpt:index"`
	BusstopPole   string `json:"odpt:busstopPole"`
	DepartureTime string `json:"odpt:departureTime"`
	ArrivalTime   string `json:"odpt:arrivalTime"`
}

// calendarOnly decodes just the calendar of a timetable record
type calendarOnly struct {
	Calendar string `json:"odpt:calendar"`
}

// rawRecords splits a JSON array without decoding its elements
func rawRecords(data []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}
