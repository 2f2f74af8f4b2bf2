package observation

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	time.DateTime,
	"2006-01",
	"2006/01/02",
}

// CSVOptions selects the date and value columns by header name. An empty
// ValueColumn uses the last non-empty field of each row.
type CSVOptions struct {
	DateColumn  string
	ValueColumn string
}

// LoadCSV reads a dated series from a CSV file with a header row. Rows whose
// value is empty are skipped.
func LoadCSV(path string, opts CSVOptions) (Series, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Series{}, fmt.Errorf("observation csv path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("open observation csv %s: %w", path, err)
	}
	defer f.Close()

	s, err := ReadCSV(f, opts)
	if err != nil {
		return Series{}, fmt.Errorf("observation csv %s: %w", path, err)
	}
	s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return s, nil
}

func ReadCSV(r io.Reader, opts CSVOptions) (Series, error) {
	dateCol := strings.TrimSpace(opts.DateColumn)
	if dateCol == "" {
		dateCol = "date"
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("read header: %w", err)
	}
	dateIdx, valueIdx := -1, -1
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == strings.ToLower(dateCol) {
			dateIdx = i
		}
		if opts.ValueColumn != "" && name == strings.ToLower(strings.TrimSpace(opts.ValueColumn)) {
			valueIdx = i
		}
	}
	if dateIdx < 0 {
		return Series{}, fmt.Errorf("date column %q not found", dateCol)
	}
	if opts.ValueColumn != "" && valueIdx < 0 {
		return Series{}, fmt.Errorf("value column %q not found", opts.ValueColumn)
	}

	var s Series
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if dateIdx >= len(record) {
			continue
		}
		field, ok := valueField(record, valueIdx, dateIdx)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Series{}, fmt.Errorf("parse value row %d: %w", row, err)
		}
		date, err := parseDate(record[dateIdx])
		if err != nil {
			return Series{}, fmt.Errorf("parse date row %d: %w", row, err)
		}
		s.Dates = append(s.Dates, date)
		s.Values = append(s.Values, value)
	}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

func valueField(record []string, valueIdx, dateIdx int) (string, bool) {
	if valueIdx >= 0 {
		if valueIdx >= len(record) {
			return "", false
		}
		field := strings.TrimSpace(record[valueIdx])
		return field, field != ""
	}
	for i := len(record) - 1; i >= 0; i-- {
		if i == dateIdx {
			continue
		}
		if field := strings.TrimSpace(record[i]); field != "" {
			return field, true
		}
	}
	return "", false
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// ParseDate accepts the same layouts as the CSV loader.
func ParseDate(raw string) (time.Time, error) {
	return parseDate(raw)
}

// WriteCSV writes s with a date,value header.
func WriteCSV(w io.Writer, s Series) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"date", "value"}); err != nil {
		return err
	}
	for i, v := range s.Values {
		if err := writer.Write([]string{s.Dates[i].Format(time.DateOnly), strconv.FormatFloat(v, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
