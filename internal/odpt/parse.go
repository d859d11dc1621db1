package odpt

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

// ParseLines converts an operator's metadata response into lines
func ParseLines(kind models.Kind, data []byte, operatorCode string) ([]models.Line, error) {
	if kind == models.KindBus {
		return ParseBusroutePatterns(data, operatorCode)
	}
	return ParseRailways(data, operatorCode)
}

// ParseRailways maps odpt:Railway records to railway lines
func ParseRailways(data []byte, operatorCode string) ([]models.Line, error) {
	var dtos []RailwayDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, &models.InvalidDataError{Source: "odpt:Railway " + operatorCode, Err: err}
	}

	lines := make([]models.Line, 0, len(dtos))
	for _, d := range dtos {
		if d.SameAs == "" {
			continue
		}
		lines = append(lines, railwayLine(d, operatorCode))
	}
	return lines, nil
}

func railwayLine(d RailwayDTO, operatorCode string) models.Line {
	title := models.LocalizedTitle{
		Primary:   firstNonEmpty(d.Title, d.RailwayTitle["ja"], lastSegment(d.SameAs)),
		Secondary: d.RailwayTitle["en"],
	}

	order := append([]StationOrderDTO(nil), d.StationOrder...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Index < order[j].Index })

	stops := make([]models.Stop, 0, len(order))
	for i, s := range order {
		stops = append(stops, models.Stop{
			Code:     s.Station,
			Name:     firstNonEmpty(s.StationTitle["ja"], s.StationTitle["en"], lastSegment(s.Station)),
			Index:    i,
			LineCode: d.SameAs,
		})
	}

	line := models.Line{
		Code:                d.SameAs,
		Kind:                models.KindRailway,
		Name:                title.Primary,
		Title:               title,
		OperatorCode:        operatorCode,
		LineColor:           firstNonEmpty(d.Color, d.LineColor),
		LineCode:            d.LineCode,
		AscendingDirection:  d.AscendingDirection,
		DescendingDirection: d.DescendingDirection,
		StopOrder:           stops,
	}
	if len(stops) > 0 {
		line.Departure = stops[0].Name
	}
	line.Destination = railwayDestination(d, stops)
	return line
}

// railwayDestination: explicit destination station, else the last station
// of the order, else the descending direction name
func railwayDestination(d RailwayDTO, stops []models.Stop) string {
	if d.DestinationStation != "" {
		for _, s := range stops {
			if s.Code == d.DestinationStation {
				return s.Name
			}
		}
		return lastSegment(d.DestinationStation)
	}
	if len(stops) > 0 {
		return stops[len(stops)-1].Name
	}
	if d.DescendingDirection != "" {
		return lastSegment(d.DescendingDirection)
	}
	return ""
}

// ParseBusroutePatterns maps odpt:BusroutePattern records to bus lines.
// Records of any other @type are dropped.
func ParseBusroutePatterns(data []byte, operatorCode string) ([]models.Line, error) {
	records, err := rawRecords(data)
	if err != nil {
		return nil, &models.InvalidDataError{Source: "odpt:BusroutePattern " + operatorCode, Err: err}
	}

	var lines []models.Line
	for _, raw := range records {
		var typed typedRecord
		if err := json.Unmarshal(raw, &typed); err != nil || typed.Type != busroutePatternType {
			continue
		}
		var d BusroutePatternDTO
		if err := json.Unmarshal(raw, &d); err != nil {
			log.Printf("Warning: skipping bus route pattern of %s: %v", operatorCode, err)
			continue
		}
		if d.SameAs == "" {
			continue
		}
		lines = append(lines, busLine(d, operatorCode))
	}
	return lines, nil
}

func busLine(d BusroutePatternDTO, operatorCode string) models.Line {
	order := append([]BusstopPoleOrderDTO(nil), d.PoleOrder...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Index < order[j].Index })

	stops := make([]models.Stop, 0, len(order))
	for i, p := range order {
		stops = append(stops, models.Stop{
			Code:     p.BusstopPole,
			Name:     poleName(p),
			Index:    i,
			LineCode: d.SameAs,
			Note:     p.Note,
			PoleID:   p.BusstopPole,
		})
	}

	name := firstNonEmpty(d.Title, lastSegment(d.SameAs))
	line := models.Line{
		Code:         d.SameAs,
		Kind:         models.KindBus,
		Name:         name,
		Title:        models.LocalizedTitle{Primary: name, Secondary: d.Kana},
		OperatorCode: operatorCode,
		LineCode:     d.Busroute,
		BusStopOrder: stops,
	}
	if len(stops) > 0 {
		line.Departure = stops[0].Name
		line.Destination = stops[len(stops)-1].Name
	}
	return line
}

// poleName reads "赤羽駅東口:1番のりば" style notes, else the pole id's
// stop segment ("odpt.BusstopPole:Toei.Akabaneeki.123.1" -> "Akabaneeki")
func poleName(p BusstopPoleOrderDTO) string {
	if p.Note != "" {
		name, _, _ := strings.Cut(p.Note, ":")
		return strings.TrimSpace(name)
	}
	_, body, ok := strings.Cut(p.BusstopPole, ":")
	if !ok {
		return p.BusstopPole
	}
	parts := strings.Split(body, ".")
	if len(parts) >= 2 {
		return parts[1]
	}
	return body
}

// lastSegment returns the part after the last '.' of an ODPT identifier
// ("odpt.Station:JR-East.Yamanote.Tokyo" -> "Tokyo")
func lastSegment(id string) string {
	_, body, ok := strings.Cut(id, ":")
	if !ok {
		body = id
	}
	if i := strings.LastIndex(body, "."); i >= 0 {
		return body[i+1:]
	}
	return body
}

// trainTypeLabel strips the namespace and operator of a train type id
func trainTypeLabel(id string) string {
	if id == "" {
		return ""
	}
	return lastSegment(id)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func describe(op string, kind models.Kind) string {
	return fmt.Sprintf("%s %s", kind, op)
}
