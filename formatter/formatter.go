package formatter

import (
	"agent-attendance/models"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Report is an attendance result together with the range it covers.
type Report struct {
	Start  time.Time
	End    time.Time
	Agents []models.AgentSummary
}

// ReportData holds the prepared grid used by all formatters
type ReportData struct {
	Start string      `json:"start"`
	End   string      `json:"end"`
	Days  []string    `json:"days"`
	Rows  []AgentGrid `json:"agents"`
}

// AgentGrid is one agent's row: a cell per day of the range plus the sums.
type AgentGrid struct {
	models.AgentSummary
	Cells map[string]models.DayStatusRecord `json:"-"`
}

// summaryColumns are the trailing columns of the attendance grid.
var summaryColumns = []string{
	"late_minutes_sum", "delays_sum", "vacations_sum",
	"justified_sum", "unjustified_sum", "justified_delays_sum",
}

// prepareReportData lays the summaries out on the day labels of the range
func prepareReportData(report *Report) *ReportData {
	data := &ReportData{
		Start: models.Day(report.Start).Format(models.DateLayout),
		End:   models.Day(report.End).Format(models.DateLayout),
		Rows:  make([]AgentGrid, 0, len(report.Agents)),
	}
	for d := models.Day(report.Start); !d.After(models.Day(report.End)); d = d.AddDate(0, 0, 1) {
		data.Days = append(data.Days, d.Format(models.DateLayout))
	}

	for _, agent := range report.Agents {
		row := AgentGrid{AgentSummary: agent, Cells: make(map[string]models.DayStatusRecord, len(agent.Days))}
		for _, rec := range agent.Days {
			row.Cells[rec.Date] = rec
		}
		data.Rows = append(data.Rows, row)
	}
	return data
}

func sums(s models.AgentSummary) []int {
	return []int{
		s.LateMinutesSum, s.DelaysSum, s.VacationsSum,
		s.JustifiedSum, s.UnjustifiedSum, s.JustifiedDelaysSum,
	}
}

// FormatText returns the text representation of the report
func FormatText(report *Report) string {
	data := prepareReportData(report)
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Attendance %s .. %s\n", data.Start, data.End))
	if len(data.Rows) == 0 {
		sb.WriteString("no agents\n")
		return sb.String()
	}

	for _, row := range data.Rows {
		sb.WriteString(formatTextLine(data.Days, row))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatTextLine formats a single agent line for text output. Overridden
// days are marked with '*', delays carry their minutes.
func formatTextLine(days []string, row AgentGrid) string {
	cells := make([]string, 0, len(days))
	for _, day := range days {
		rec, ok := row.Cells[day]
		if !ok {
			continue
		}
		cell := string(rec.Status)
		if rec.Status == models.StatusDelay {
			cell = fmt.Sprintf("%s(%d)", cell, rec.LateMinutes)
		}
		if rec.Overridden {
			cell += "*"
		}
		cells = append(cells, fmt.Sprintf("%s=%s", day[5:], cell))
	}

	s := sums(row.AgentSummary)
	return fmt.Sprintf("%s %s [%s] : %s ; late=%d delays=%d vacations=%d justified=%d unjustified=%d justified_delays=%d",
		row.AgentID, row.Name, row.Lead, strings.Join(cells, " "),
		s[0], s[1], s[2], s[3], s[4], s[5])
}

// FormatJSON returns the JSON representation of the report
func FormatJSON(report *Report) string {
	data := prepareReportData(report)
	jsonBytes, _ := json.MarshalIndent(data, "", "  ")
	return string(jsonBytes)
}

// FormatCSV returns the attendance grid: one row per agent, one column per
// day of the range, then the six sums.
func FormatCSV(report *Report) string {
	data := prepareReportData(report)
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	header := append([]string{"agent_id", "name"}, data.Days...)
	writer.Write(append(header, summaryColumns...))

	for _, row := range data.Rows {
		record := []string{row.AgentID, row.Name}
		for _, day := range data.Days {
			record = append(record, string(row.Cells[day].Status))
		}
		for _, n := range sums(row.AgentSummary) {
			record = append(record, fmt.Sprintf("%d", n))
		}
		writer.Write(record)
	}

	writer.Flush()
	return sb.String()
}

// FormatConnectionsCSV returns one row per raw connection with the expected
// window and the day's final status.
func FormatConnectionsCSV(details []models.ConnectionDetail) string {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	writer.Write([]string{
		"expected_connect_time", "expected_disconnect_time",
		"date", "agent_id", "name", "shift",
		"actual_connect_time", "actual_disconnect_time",
		"status", "late_minutes_sum",
	})
	for _, d := range details {
		writer.Write([]string{
			d.ExpectedStart.String(), d.ExpectedEnd.String(),
			d.Date, d.AgentID, d.Name, string(d.Shift),
			d.ActualStart.String(), d.ActualEnd.String(),
			string(d.Status), fmt.Sprintf("%d", d.LateMinutes),
		})
	}

	writer.Flush()
	return sb.String()
}

// FormatJustificationsCSV returns the stored overrides in the given order.
// names maps agent ids to display names; unknown agents get an empty name.
func FormatJustificationsCSV(overrides []models.Override, names map[string]string) string {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	writer.Write([]string{"agent_id", "name", "date", "type", "note", "lead", "updated_at"})
	for _, o := range overrides {
		writer.Write([]string{
			o.AgentID, names[o.AgentID], o.Date.Format(models.DateLayout),
			string(o.Type), o.Note, o.Lead, o.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}

	writer.Flush()
	return sb.String()
}
