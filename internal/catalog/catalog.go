// Package catalog routes line and timetable lookups to each operator's
// source: the ODPT API or a GTFS feed.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/models"
	"github.com/mytimetablemaker/transit-sync/internal/odpt"
	"github.com/mytimetablemaker/transit-sync/internal/static/gtfs"
	"github.com/mytimetablemaker/transit-sync/internal/timetable"
)

// Catalog resolves operators, lines and stops
type Catalog struct {
	cfg        *config.Config
	service    *odpt.Service
	timetables *odpt.TimetableSource
	pipeline   *gtfs.Pipeline
}

// New creates a catalog over the configured operators
func New(cfg *config.Config, service *odpt.Service, timetables *odpt.TimetableSource, pipeline *gtfs.Pipeline) *Catalog {
	return &Catalog{cfg: cfg, service: service, timetables: timetables, pipeline: pipeline}
}

// Operators lists the configured operators
func (c *Catalog) Operators() []config.Operator {
	return c.cfg.Operators
}

// Operator looks up an operator by code
func (c *Catalog) Operator(code string) (config.Operator, error) {
	op, ok := c.cfg.FindOperator(code)
	if !ok {
		return config.Operator{}, fmt.Errorf("unknown operator %q", code)
	}
	return op, nil
}

// Lines returns the lines of an operator
func (c *Catalog) Lines(ctx context.Context, operatorCode string) ([]models.Line, error) {
	op, err := c.Operator(operatorCode)
	if err != nil {
		return nil, err
	}
	if op.Source == config.SourceGTFS {
		return c.pipeline.Lines(ctx, op)
	}
	return c.service.Lines(ctx, op, c.cfg.ConsumerToken)
}

// Source returns the timetable source serving op
func (c *Catalog) Source(op config.Operator) timetable.Source {
	if op.Source == config.SourceGTFS {
		return c.pipeline.Source(op)
	}
	return c.timetables
}

// Selection resolves a line code and two stops (code, pole id or name) of an
// operator into a timetable selection
func (c *Catalog) Selection(ctx context.Context, operatorCode, lineCode, from, to string) (timetable.Selection, timetable.Source, error) {
	op, err := c.Operator(operatorCode)
	if err != nil {
		return timetable.Selection{}, nil, err
	}
	lines, err := c.Lines(ctx, operatorCode)
	if err != nil {
		return timetable.Selection{}, nil, err
	}

	var line *models.Line
	for i := range lines {
		if lines[i].Code == lineCode {
			line = &lines[i]
			break
		}
	}
	if line == nil {
		return timetable.Selection{}, nil, fmt.Errorf("line %q not found for %s", lineCode, operatorCode)
	}

	departure, err := findStop(line, from)
	if err != nil {
		return timetable.Selection{}, nil, err
	}
	arrival, err := findStop(line, to)
	if err != nil {
		return timetable.Selection{}, nil, err
	}
	return timetable.Selection{Line: line, Departure: &departure, Arrival: &arrival}, c.Source(op), nil
}

func findStop(line *models.Line, query string) (models.Stop, error) {
	if stop, ok := line.FindStop(query); ok {
		return stop, nil
	}
	for _, s := range line.Stops() {
		if strings.EqualFold(s.Name, query) {
			return s, nil
		}
	}
	return models.Stop{}, fmt.Errorf("stop %q not found on line %s", query, line.Code)
}
