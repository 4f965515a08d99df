package parser

import (
	"agent-attendance/errors"
	"agent-attendance/metrics"
	"agent-attendance/models"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// timeLayouts are tried in order by ParseTimeOfDay. 24-hour forms come first
// because they are what the clocking system exports; the 12-hour forms cover
// hand-edited schedules.
var timeLayouts = []string{"15:04:05", "15:04", "3:04:05PM", "3:04PM", "3PM"}

// dateLayouts are accepted by ParseDate. The US form is what actuals exports use.
var dateLayouts = []string{"01/02/2006", models.DateLayout, "1/2/2006"}

// ParseTimeOfDay parses "HH:MM", "HH:MM:SS" or a 12-hour clock value.
// Empty or malformed input yields an invalid TimeOfDay rather than an error.
func ParseTimeOfDay(value string) models.TimeOfDay {
	value = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), " ", ""))
	if value == "" {
		return models.TimeOfDay{}
	}
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return models.Clock(t.Hour(), t.Minute(), t.Second())
		}
	}
	return models.TimeOfDay{}
}

// ParseDate parses a calendar date in mm/dd/yyyy or yyyy-mm-dd form.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return models.Day(t), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("%w: %q: %v", errors.ErrInvalidDate, value, lastErr)
}

// WeekdayToken returns the three-letter token for d ("Mon", "Tue", ...).
func WeekdayToken(d time.Weekday) string {
	return d.String()[:3]
}

// ParseWeekday accepts a three-letter token or a full weekday name, in any case.
func ParseWeekday(token string) (time.Weekday, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if len(token) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if token == name || token == name[:3] {
			return d, true
		}
	}
	return 0, false
}

// ParseDays converts "Mon, Tue, Wed" into a weekday set. Unknown tokens are
// dropped.
func ParseDays(list string) models.Weekdays {
	out := make(models.Weekdays)
	for _, part := range strings.Split(list, ",") {
		if d, ok := ParseWeekday(part); ok {
			out[d] = true
		}
	}
	return out
}

// columns maps lower-cased header names to their index.
type columns map[string]int

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// table is a CSV reader that resolves the header row and tracks line numbers.
type table struct {
	reader *csv.Reader
	cols   columns
	width  int // index of the last named column plus one
	line   int
}

func newTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	t := &table{reader: reader}
	for {
		record, err := t.next()
		if err == io.EOF {
			return nil, errors.ErrEmptyInput
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) {
			continue
		}
		t.cols = make(columns, len(record))
		for i, name := range record {
			name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "#")))
			if name == "" {
				continue
			}
			t.cols[name] = i
			t.width = i + 1
		}
		for _, name := range required {
			if _, ok := t.cols[name]; !ok {
				return nil, t.fail(record, fmt.Errorf("%w: %s", errors.ErrMissingColumn, name))
			}
		}
		return t, nil
	}
}

func (t *table) next() ([]string, error) {
	record, err := t.reader.Read()
	t.line++
	if err == io.EOF {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("error reading CSV at line %d: %w", t.line, err)
	}
	return record, nil
}

func (t *table) fail(record []string, err error) error {
	metrics.ParserErrorsTotal.WithLabelValues(errorType(err)).Inc()
	return &errors.ParseError{Line: t.line, Record: record, Err: err}
}

// ParseSchedule reads a schedule CSV with the columns
// agent_id, Shift, name, lead, working_days, days_off, expected_start, expected_end.
// Columns are located by header name, case-insensitively. Rows whose first
// field starts with '#' are comments. When days_off is empty the weekdays
// outside working_days are treated as days off.
func ParseSchedule(r io.Reader) ([]models.ScheduleEntry, error) {
	started := time.Now()
	defer func() { metrics.ParserDurationSeconds.Observe(time.Since(started).Seconds()) }()

	t, err := newTable(r, "agent_id", "expected_start", "expected_end")
	if err != nil {
		return nil, err
	}

	var entries []models.ScheduleEntry
	for {
		record, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) || strings.HasPrefix(strings.TrimSpace(record[0]), "#") {
			continue
		}
		if len(record) < t.width {
			return nil, t.fail(record, errors.ErrInvalidFieldCount)
		}

		entry := models.ScheduleEntry{
			AgentID:       t.cols.get(record, "agent_id"),
			Name:          t.cols.get(record, "name"),
			Lead:          t.cols.get(record, "lead"),
			Shift:         models.Shift(t.cols.get(record, "shift")),
			WorkingDays:   ParseDays(t.cols.get(record, "working_days")),
			DaysOff:       ParseDays(t.cols.get(record, "days_off")),
			ExpectedStart: ParseTimeOfDay(t.cols.get(record, "expected_start")),
			ExpectedEnd:   ParseTimeOfDay(t.cols.get(record, "expected_end")),
		}
		if entry.AgentID == "" {
			return nil, t.fail(record, errors.ErrMissingAgentID)
		}
		if len(entry.DaysOff) == 0 && len(entry.WorkingDays) > 0 {
			entry.DaysOff = entry.WorkingDays.Complement()
		}

		metrics.ParserRecordsTotal.Inc()
		entries = append(entries, entry)
	}
	return entries, nil
}

// ParseActuals reads an actual-connections CSV with the columns
// date, agent_id, name, shift, actual_start, actual_end. Dates are mm/dd/yyyy
// or yyyy-mm-dd. Unparseable times are kept as absent values.
func ParseActuals(r io.Reader) ([]models.ActualConnection, error) {
	started := time.Now()
	defer func() { metrics.ParserDurationSeconds.Observe(time.Since(started).Seconds()) }()

	t, err := newTable(r, "date", "agent_id", "actual_start", "actual_end")
	if err != nil {
		return nil, err
	}

	var rows []models.ActualConnection
	for {
		record, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(record) || strings.HasPrefix(strings.TrimSpace(record[0]), "#") {
			continue
		}

		row := models.ActualConnection{
			AgentID: t.cols.get(record, "agent_id"),
			Name:    t.cols.get(record, "name"),
			Shift:   models.Shift(t.cols.get(record, "shift")),
			Start:   ParseTimeOfDay(t.cols.get(record, "actual_start")),
			End:     ParseTimeOfDay(t.cols.get(record, "actual_end")),
		}
		if row.AgentID == "" {
			return nil, t.fail(record, errors.ErrMissingAgentID)
		}
		row.Date, err = ParseDate(t.cols.get(record, "date"))
		if err != nil {
			return nil, t.fail(record, err)
		}

		metrics.ParserRecordsTotal.Inc()
		rows = append(rows, row)
	}
	return rows, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func errorType(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrInvalidFieldCount):
		return "invalid_field_count"
	case stderrors.Is(err, errors.ErrMissingColumn):
		return "missing_column"
	case stderrors.Is(err, errors.ErrMissingAgentID):
		return "missing_agent_id"
	case stderrors.Is(err, errors.ErrInvalidDate):
		return "invalid_date"
	default:
		return "other"
	}
}
