package odpt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/mytimetablemaker/transit-sync/internal/fetch"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

const busroutePatternPrefix = "odpt.BusroutePattern:"

// TimetableSource queries odpt:TrainTimetable and odpt:BusTimetable
type TimetableSource struct {
	baseURL string
	fetcher *fetch.Fetcher
	token   string
}

// NewTimetableSource creates a TimetableSource
func NewTimetableSource(baseURL string, fetcher *fetch.Fetcher, token string) *TimetableSource {
	return &TimetableSource{baseURL: baseURL, fetcher: fetcher, token: token}
}

// CalendarTypes returns the distinct calendars the line runs under
func (t *TimetableSource) CalendarTypes(ctx context.Context, line models.Line) ([]models.CalendarType, error) {
	data, err := t.get(ctx, t.timetableURL(line, "", models.CalendarType{}))
	if err != nil {
		return nil, err
	}
	records, err := rawRecords(data)
	if err != nil {
		return nil, &models.InvalidDataError{Source: "timetable " + line.Code, Err: err}
	}

	seen := make(map[models.CalendarType]bool)
	var types []models.CalendarType
	for _, raw := range records {
		var c calendarOnly
		if err := json.Unmarshal(raw, &c); err != nil || c.Calendar == "" {
			continue
		}
		ct := models.ParseCalendarType(c.Calendar)
		if !seen[ct] {
			seen[ct] = true
			types = append(types, ct)
		}
	}
	return models.SortCalendarTypes(types), nil
}

// Timetables returns the raw trips of line under calendar. direction is the
// rail direction id and is ignored for buses.
func (t *TimetableSource) Timetables(ctx context.Context, line models.Line, direction string, calendar models.CalendarType) ([]models.Trip, error) {
	data, err := t.get(ctx, t.timetableURL(line, direction, calendar))
	if err != nil {
		return nil, err
	}
	if line.Kind == models.KindBus {
		return parseBusTimetables(data, line)
	}
	return parseTrainTimetables(data, line)
}

func (t *TimetableSource) timetableURL(line models.Line, direction string, calendar models.CalendarType) string {
	q := url.Values{}
	resource := "odpt:TrainTimetable"
	if line.Kind == models.KindBus {
		resource = "odpt:BusTimetable"
		if strings.HasPrefix(line.Code, busroutePatternPrefix) {
			q.Set("odpt:busroutePattern", line.Code)
		} else {
			q.Set("dc:title", line.Name)
		}
	} else {
		q.Set("odpt:railway", line.Code)
		if direction != "" {
			q.Set("odpt:railDirection", direction)
		}
	}
	if !calendar.IsZero() {
		q.Set("odpt:calendar", calendar.String())
	}
	return fmt.Sprintf("%s/%s?%s", t.baseURL, resource, q.Encode())
}

func (t *TimetableSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := t.fetcher.FetchOK(ctx, rawURL, fetch.BearerAuth(t.token))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func parseTrainTimetables(data []byte, line models.Line) ([]models.Trip, error) {
	var dtos []TrainTimetableDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, &models.InvalidDataError{Source: "odpt:TrainTimetable " + line.Code, Err: err}
	}

	trips := make([]models.Trip, 0, len(dtos))
	for _, d := range dtos {
		events := make([]models.StopEvent, 0, len(d.Objects))
		for _, o := range d.Objects {
			switch {
			case o.DepartureStation != "":
				events = append(events, models.StopEvent{
					StopCode:      o.DepartureStation,
					DepartureTime: o.DepartureTime,
					ArrivalTime:   o.ArrivalTime,
				})
			case o.ArrivalStation != "":
				events = append(events, models.StopEvent{
					StopCode:    o.ArrivalStation,
					ArrivalTime: o.ArrivalTime,
				})
			}
		}
		trips = append(trips, models.Trip{
			Events: events,
			Train: &models.TrainTime{
				TrainNumber: d.TrainNumber,
				TrainType:   trainTypeLabel(d.TrainType),
			},
		})
	}
	return trips, nil
}

func parseBusTimetables(data []byte, line models.Line) ([]models.Trip, error) {
	var dtos []BusTimetableDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, &models.InvalidDataError{Source: "odpt:BusTimetable " + line.Code, Err: err}
	}

	trips := make([]models.Trip, 0, len(dtos))
	for _, d := range dtos {
		objects := append([]BusTimetableObjectDTO(nil), d.Objects...)
		sort.SliceStable(objects, func(i, j int) bool { return objects[i].Index < objects[j].Index })

		events := make([]models.StopEvent, 0, len(objects))
		for _, o := range objects {
			events = append(events, models.StopEvent{
				StopCode:      o.BusstopPole,
				DepartureTime: o.DepartureTime,
				ArrivalTime:   o.ArrivalTime,
			})
		}
		trips = append(trips, models.Trip{
			Events: events,
			Bus: &models.BusTime{
				BusNumber:    d.BusNumber,
				RoutePattern: firstNonEmpty(d.Title, line.Name),
			},
		})
	}
	return trips, nil
}
