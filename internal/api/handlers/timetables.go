package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mytimetablemaker/transit-sync/internal/config"
	"github.com/mytimetablemaker/transit-sync/internal/kvstore"
	"github.com/mytimetablemaker/transit-sync/internal/models"
	"github.com/mytimetablemaker/transit-sync/internal/timetable"
)

// Catalog resolves operators, lines and stop selections
type Catalog interface {
	Operator(code string) (config.Operator, error)
	Lines(ctx context.Context, operatorCode string) ([]models.Line, error)
	Selection(ctx context.Context, operatorCode, lineCode, from, to string) (timetable.Selection, timetable.Source, error)
}

// TimetableHandler serves line listings and timetable generation
type TimetableHandler struct {
	catalog     Catalog
	synthesizer *timetable.Synthesizer
}

// NewTimetableHandler creates a new handler
func NewTimetableHandler(catalog Catalog, synthesizer *timetable.Synthesizer) *TimetableHandler {
	return &TimetableHandler{catalog: catalog, synthesizer: synthesizer}
}

// LinesResponse is the JSON response for GET /api/operators/{operator}/lines
type LinesResponse struct {
	Operator string        `json:"operator"`
	Lines    []models.Line `json:"lines"`
	Count    int           `json:"count"`
}

// GenerateRequest is the body of POST /api/timetables
type GenerateRequest struct {
	Operator  string `json:"operator"`
	Line      string `json:"line"`
	From      string `json:"from"`
	To        string `json:"to"`
	Route     string `json:"route"`
	LineIndex int    `json:"lineIndex"`
	Refresh   bool   `json:"refresh"`
}

// CalendarTimetable is one calendar type's entries
type CalendarTimetable struct {
	Calendar string                      `json:"calendar"`
	Display  string                      `json:"display"`
	Entries  []models.TransportationTime `json:"entries"`
}

// TimetableResponse is the JSON response of the timetable endpoints
type TimetableResponse struct {
	Route       string              `json:"route"`
	LineIndex   int                 `json:"lineIndex"`
	RunID       string              `json:"runId,omitempty"`
	Calendars   []CalendarTimetable `json:"calendars"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// GetLines handles GET /api/operators/{operator}/lines
func (h *TimetableHandler) GetLines(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "operator")
	if _, err := h.catalog.Operator(code); err != nil {
		writeError(w, http.StatusNotFound, "Unknown operator", err)
		return
	}

	lines, err := h.catalog.Lines(r.Context(), code)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Failed to load lines", err)
		return
	}
	writeJSON(w, http.StatusOK, LinesResponse{Operator: code, Lines: lines, Count: len(lines)})
}

// GenerateTimetable handles POST /api/timetables
// Synthesizes and persists the timetable of a line slot
func (h *TimetableHandler) GenerateTimetable(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	route, err := kvstore.ParseRoute(req.Route)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown route", err)
		return
	}
	if err := kvstore.CheckLineIndex(req.LineIndex); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid line index", err)
		return
	}

	sel, src, err := h.catalog.Selection(r.Context(), req.Operator, req.Line, req.From, req.To)
	if err != nil {
		writeError(w, http.StatusNotFound, "Selection not found", err)
		return
	}
	sel.Route = route
	sel.LineIndex = req.LineIndex
	sel.Refresh = req.Refresh

	result, err := h.synthesizer.Synthesize(r.Context(), src, sel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store timetable", err)
		return
	}

	resp := TimetableResponse{Route: route.Token(), LineIndex: req.LineIndex, RunID: result.RunID, GeneratedAt: time.Now().UTC()}
	for _, c := range result.Calendars {
		resp.Calendars = append(resp.Calendars, calendarTimetable(c, result.Timetables[c]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTimetable handles GET /api/timetables/{route}/{index}
// Returns the persisted timetable of a line slot, optionally one calendar
func (h *TimetableHandler) GetTimetable(w http.ResponseWriter, r *http.Request) {
	route, err := kvstore.ParseRoute(chi.URLParam(r, "route"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown route", err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err == nil {
		err = kvstore.CheckLineIndex(index)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid line index", err)
		return
	}
	only := r.URL.Query().Get("calendar")

	stored := h.synthesizer.Stored(r.Context(), route, index)
	resp := TimetableResponse{Route: route.Token(), LineIndex: index, GeneratedAt: time.Now().UTC()}
	for _, c := range stored.Calendars {
		if only != "" && only != c.String() && only != c.Tag() {
			continue
		}
		resp.Calendars = append(resp.Calendars, calendarTimetable(c, stored.Timetables[c]))
	}
	if len(resp.Calendars) == 0 {
		writeError(w, http.StatusNotFound, "No timetable stored", nil)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func calendarTimetable(c models.CalendarType, entries []models.TransportationTime) CalendarTimetable {
	if entries == nil {
		entries = []models.TransportationTime{}
	}
	return CalendarTimetable{Calendar: c.String(), Display: string(c.Display()), Entries: entries}
}
