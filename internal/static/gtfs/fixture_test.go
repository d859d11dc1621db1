package gtfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleFeed has four named routes and one unnamed route:
//   - r1: headsign A (5 trips, weekday) and headsign B (3 trips, saturday)
//   - r2: one trip without headsign or direction
//   - r3: no names, dropped
//   - r4: two trips without headsign, opposite endpoints
func sampleFeed() map[string]string {
	var stopTimes strings.Builder
	stopTimes.WriteString("trip_id,arrival_time,departure_time,stop_id,stop_sequence\n")
	forward := []string{"s1", "s2", "s3"}
	backward := []string{"s3", "s2", "s1"}
	write := func(trip string, startMinute int, stops []string) {
		// write out of sequence order to exercise sorting
		for i := len(stops) - 1; i >= 0; i-- {
			tm := fmt.Sprintf("07:%02d:00", startMinute+i*5)
			fmt.Fprintf(&stopTimes, "%s,%s,%s,%s,%d\n", trip, tm, tm, stops[i], i+1)
		}
	}
	for i := 1; i <= 5; i++ {
		write(fmt.Sprintf("a%d", i), i, forward)
	}
	for i := 1; i <= 3; i++ {
		write(fmt.Sprintf("b%d", i), 30+i, backward)
	}
	write("c1", 0, []string{"s1", "s3"})
	write("l1", 0, forward)
	write("l2", 20, backward)

	var trips strings.Builder
	trips.WriteString("route_id,service_id,trip_id,trip_headsign,direction_id\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&trips, "r1,wk,a%d,A,\n", i)
	}
	for i := 1; i <= 3; i++ {
		fmt.Fprintf(&trips, "r1,sat,b%d,B,\n", i)
	}
	trips.WriteString("r2,wk,c1,,\nr4,wk,l1,,\nr4,wk,l2,,\n")

	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone,agency_lang\n" +
			"ag,Sample Bus,https://example.com,Asia/Tokyo,ja\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type,route_color\n" +
			"r1,ag,１系統,,3,FF0000\n" +
			"r2,ag,,Airport〜Downtown（Express）,3,\n" +
			"r3,ag,,,3,\n" +
			"r4,ag,loop,,3,\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"s1,Alpha,35.0,139.0\n" +
			"s2,Beta,35.1,139.1\n" +
			"s3,Gamma,35.2,139.2\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"wk,1,1,1,1,1,0,0,20250101,20251231\n" +
			"sat,0,0,0,0,0,1,0,20250101,20251231\n",
		"trips.txt":      trips.String(),
		"stop_times.txt": stopTimes.String(),
	}
}

func writeFeedDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func zipFeed(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
