package kvstore

import (
	"fmt"
	"strings"
)

// Route identifies one of the persisted route slots. The token is the key
// namespace shared with the sync documents.
type Route struct {
	Outbound bool // "go" when true, "back" otherwise
	Number   int  // 1 or 2
}

var (
	Back1 = Route{Outbound: false, Number: 1}
	Go1   = Route{Outbound: true, Number: 1}
	Back2 = Route{Outbound: false, Number: 2}
	Go2   = Route{Outbound: true, Number: 2}
)

// Routes lists every route slot
var Routes = []Route{Back1, Go1, Back2, Go2}

// Token returns "back1", "go1", "back2" or "go2"
func (r Route) Token() string {
	if r.Outbound {
		return fmt.Sprintf("go%d", r.Number)
	}
	return fmt.Sprintf("back%d", r.Number)
}

func (r Route) String() string { return r.Token() }

// ParseRoute parses a route token
func ParseRoute(token string) (Route, error) {
	for _, r := range Routes {
		if r.Token() == token {
			return r, nil
		}
	}
	return Route{}, fmt.Errorf("unknown route token %q", token)
}

// MinLineIndex and MaxLineIndex bound the line slots of a route. The index is
// a single digit so that "{lineIndex}{calendarTag}" in a key stays
// unambiguous: slot 1 with tag "12" cannot meet slot 11 with tag "2".
const (
	MinLineIndex = 1
	MaxLineIndex = 9
)

// CheckLineIndex rejects a line index outside MinLineIndex..MaxLineIndex
func CheckLineIndex(lineIndex int) error {
	if lineIndex < MinLineIndex || lineIndex > MaxLineIndex {
		return fmt.Errorf("line index %d out of range %d..%d", lineIndex, MinLineIndex, MaxLineIndex)
	}
	return nil
}

// MinHour and MaxHour bound the persisted hour buckets. Hours past 23 hold
// after-midnight service.
const (
	MinHour = 0
	MaxHour = 29
)

// TimetableHourKey is "{route}timetable{lineIndex}{calendarTag}_hour{HH}"
func TimetableHourKey(r Route, lineIndex int, calendarTag string, hour int) string {
	return fmt.Sprintf("%stimetable%d%s_hour%02d", r.Token(), lineIndex, calendarTag, hour)
}

// TrainTypeListKey is "{route}trainTypeList{lineIndex}{calendarTag}"
func TrainTypeListKey(r Route, lineIndex int, calendarTag string) string {
	return fmt.Sprintf("%strainTypeList%d%s", r.Token(), lineIndex, calendarTag)
}

// CalendarTypesKey holds the final (merged) calendar set of a line slot
func CalendarTypesKey(r Route, lineIndex int) string {
	return fmt.Sprintf("%scalendarTypes%d", r.Token(), lineIndex)
}

// RawCalendarTypesKey holds the raw calendar set of a line slot
func RawCalendarTypesKey(r Route, lineIndex int) string {
	return fmt.Sprintf("%srawCalendarTypes%d", r.Token(), lineIndex)
}

// GlobalRawCalendarTypesKey holds the raw calendar set of a line code,
// shared by every slot showing that line
func GlobalRawCalendarTypesKey(lineCode string) string {
	return "rawCalendarTypes_" + lineCode
}

// ETagKey and LastModifiedKey hold the validators of a cached resource
func ETagKey(cacheKey string) string { return cacheKey + "_etag" }

func LastModifiedKey(cacheKey string) string { return cacheKey + "_lastModified" }

// RoutePrefix is the prefix of every key owned by a route slot
func RoutePrefix(r Route) string {
	return r.Token()
}

// BelongsTo reports whether key is in the namespace of route r. "go1" must
// not claim keys of a hypothetical "go10", so the next byte has to be a
// letter of the key body.
func BelongsTo(key string, r Route) bool {
	rest, ok := strings.CutPrefix(key, r.Token())
	if !ok || rest == "" {
		return false
	}
	c := rest[0]
	return c >= 'a' && c <= 'z'
}
