package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mytimetablemaker/transit-sync/internal/app"
	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
)

func main() {
	// Command line flags
	operator := flag.String("operator", "", "Operator code from the operators file")
	lineCode := flag.String("line", "", "Line code (see -list)")
	from := flag.String("from", "", "Departure stop code or name")
	to := flag.String("to", "", "Arrival stop code or name")
	route := flag.String("route", "go1", "Route slot: back1, go1, back2 or go2")
	index := flag.Int("index", 1, "Line index within the route slot")
	list := flag.Bool("list", false, "List the operator's lines and stops instead of generating")
	refresh := flag.Bool("refresh", false, "Ask the source for calendar types even when cached")
	flag.Parse()

	app.InitLogging()
	if *operator == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if *list {
		if err := listLines(ctx, a, *operator, *lineCode); err != nil {
			log.Fatalf("Failed to list lines: %v", err)
		}
		return
	}

	if *lineCode == "" || *from == "" || *to == "" {
		log.Fatal("-line, -from and -to are required (use -list to browse)")
	}
	slot, err := kvstore.ParseRoute(*route)
	if err != nil {
		log.Fatalf("Invalid -route: %v", err)
	}
	if err := kvstore.CheckLineIndex(*index); err != nil {
		log.Fatalf("Invalid -index: %v", err)
	}

	sel, src, err := a.Catalog.Selection(ctx, *operator, *lineCode, *from, *to)
	if err != nil {
		log.Fatalf("Invalid selection: %v", err)
	}
	sel.Route = slot
	sel.LineIndex = *index
	sel.Refresh = *refresh

	result, err := a.Synthesizer.Synthesize(ctx, src, sel)
	if err != nil {
		log.Fatalf("Failed to store timetable: %v", err)
	}

	for _, c := range result.Calendars {
		printTimetable(c, result.Timetables[c])
	}
	log.Println("Timetable complete!")
}

func listLines(ctx context.Context, a *app.App, operator, only string) error {
	lines, err := a.Catalog.Lines(ctx, operator)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for _, l := range lines {
		if only != "" && l.Code != only {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s → %s\n", l.Code, l.Name, l.Departure, l.Destination)
		if only == "" {
			continue
		}
		for _, s := range l.Stops() {
			fmt.Fprintf(w, "  %d\t%s\t%s\n", s.Index, s.Code, s.Name)
		}
	}
	return nil
}

func printTimetable(c models.CalendarType, entries []models.TransportationTime) {
	fmt.Printf("== %s (%s): %d departures\n", c, c.Display(), len(entries))
	hour := -1
	var row []string
	flush := func() {
		if hour >= 0 {
			fmt.Printf("%02d: %s\n", hour, strings.Join(row, " "))
		}
		row = row[:0]
	}
	for _, e := range entries {
		if e.Hour() != hour {
			flush()
			hour = e.Hour()
		}
		label := e.DepartureTime[3:]
		if t := e.TypeLabel(); t != "" {
			label += "(" + t + ")"
		}
		row = append(row, label)
	}
	flush()
}
