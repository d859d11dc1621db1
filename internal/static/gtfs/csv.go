package gtfs

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mytimetablemaker/transit-sync/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one CSV record addressed by header name
type Row struct {
	record []string
	idx    map[string]int
}

// Get returns the trimmed value of field, or "" when the column is absent
func (r Row) Get(field string) string {
	return getField(r.record, r.idx, field)
}

// Has reports whether the table has the column
func (r Row) Has(field string) bool {
	_, ok := r.idx[field]
	return ok
}

// ParseCSV reads a whole table. Use it for small tables only.
func ParseCSV(r io.Reader) ([]Row, error) {
	var rows []Row
	err := ParseCSVStreaming(r, func(row Row) error {
		rows = append(rows, Row{record: append([]string(nil), row.record...), idx: row.idx})
		return nil
	})
	return rows, err
}

// ParseCSVStreaming calls onRow for every record, one at a time, so memory
// use does not depend on table size. The Row passed to onRow is only valid
// during the call. Records whose field count differs from the header are
// skipped. An error returned by onRow stops the scan and is returned.
func ParseCSVStreaming(r io.Reader, onRow func(Row) error) error {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("missing header")
		}
		return &models.InvalidDataError{Source: "csv", Err: err}
	}
	idx := makeIndex(header)
	width := len(header)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return err
		}
		if len(record) != width {
			continue
		}
		if err := onRow(Row{record: record, idx: idx}); err != nil {
			return err
		}
	}
}

// parseFile bulk-parses one table of an extracted feed. A missing file
// yields no rows and no error.
func parseFile(dir, name string) ([]Row, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	rows, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

// streamFile streams one table of an extracted feed
func streamFile(dir, name string, onRow func(Row) error) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ParseCSVStreaming(f, onRow); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
