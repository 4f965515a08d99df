package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar date format used for keys and output.
const DateLayout = "2006-01-02"

// Day normalizes t to midnight UTC of its calendar date. All dates handled by
// the engine are normalized this way so they compare and key consistently.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Status is a day status code. Override codes share this type and form an
// open, string-keyed enumeration.
type Status string

const (
	StatusPending     Status = "-"
	StatusDayOff      Status = "O"
	StatusUnjustified Status = "U"
	StatusOnTime      Status = "A"
	StatusDelay       Status = "D"
	StatusVacation    Status = "V"
	StatusJustified   Status = "J"
)

// NormalizeStatus trims and upper-cases a raw status code.
func NormalizeStatus(s string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(s)))
}

// TimeOfDay is an offset from midnight. Valid is false when the source string
// was empty or could not be parsed.
type TimeOfDay struct {
	Offset time.Duration
	Valid  bool
}

// Clock builds a valid TimeOfDay.
func Clock(hour, minute, second int) TimeOfDay {
	d := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second
	return TimeOfDay{Offset: d, Valid: true}
}

// On combines the time-of-day with a calendar date.
func (t TimeOfDay) On(day time.Time) time.Time {
	return Day(day).Add(t.Offset)
}

// String renders HH:MM, or an empty string for an absent value.
func (t TimeOfDay) String() string {
	if !t.Valid {
		return ""
	}
	h := int(t.Offset / time.Hour)
	m := int((t.Offset % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Shift is the categorical expected work window.
type Shift string

const (
	ShiftMorning   Shift = "Morning"
	ShiftAfternoon Shift = "Afternoon"
	ShiftNight     Shift = "Night"
)

// IsNight reports whether the shift is an overnight shift.
func (s Shift) IsNight() bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(ShiftNight))
}

// Weekdays is a set of weekdays.
type Weekdays map[time.Weekday]bool

// Has reports whether d is in the set.
func (w Weekdays) Has(d time.Weekday) bool {
	return w[d]
}

// Complement returns the weekdays not in w.
func (w Weekdays) Complement() Weekdays {
	out := make(Weekdays)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !w[d] {
			out[d] = true
		}
	}
	return out
}

// String renders the set as "Mon, Tue" in Monday-first order.
func (w Weekdays) String() string {
	var parts []string
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if w[d] {
			parts = append(parts, d.String()[:3])
		}
	}
	return strings.Join(parts, ", ")
}

// ScheduleEntry is one agent's expected shift configuration within a schedule
// version. Entries are immutable once published.
type ScheduleEntry struct {
	AgentID       string    `json:"agent_id"`
	Name          string    `json:"name"`
	Lead          string    `json:"lead"`
	Shift         Shift     `json:"shift"`
	WorkingDays   Weekdays  `json:"-"`
	DaysOff       Weekdays  `json:"-"`
	ExpectedStart TimeOfDay `json:"-"`
	ExpectedEnd   TimeOfDay `json:"-"`
}

// ExpectedInterval returns the expected shift window on day. An end at or
// before the start belongs to the next calendar day. ok is false when either
// bound is absent.
func (e ScheduleEntry) ExpectedInterval(day time.Time) (start, end time.Time, ok bool) {
	return Interval(day, e.ExpectedStart, e.ExpectedEnd)
}

// Interval combines a start and end time-of-day with day, rolling the end
// over midnight when it is not after the start.
func Interval(day time.Time, from, to TimeOfDay) (start, end time.Time, ok bool) {
	if !from.Valid || !to.Valid {
		return time.Time{}, time.Time{}, false
	}
	start = from.On(day)
	end = to.On(day)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end, true
}

// ScheduleVersion is a dated, append-only snapshot of the full schedule.
type ScheduleVersion struct {
	ID            string          `json:"id"`
	EffectiveFrom time.Time       `json:"effective_from"`
	CreatedAt     time.Time       `json:"created_at"`
	Note          string          `json:"note"`
	Entries       []ScheduleEntry `json:"entries,omitempty"`
}

// ActualConnection is one raw observed connection record.
type ActualConnection struct {
	AgentID string
	Name    string
	Shift   Shift
	Date    time.Time
	Start   TimeOfDay
	End     TimeOfDay
}

// Envelope is the reduced actual connection of an agent on one day: the
// earliest start and the latest end.
type Envelope struct {
	Start TimeOfDay
	End   TimeOfDay
}

// DayKey identifies an (agent, date) pair.
type DayKey struct {
	AgentID string
	Date    string
}

// KeyOf builds the DayKey for agentID on day.
func KeyOf(agentID string, day time.Time) DayKey {
	return DayKey{AgentID: agentID, Date: Day(day).Format(DateLayout)}
}

// Override is a manual correction of one (agent, date) status.
type Override struct {
	AgentID   string    `json:"agent_id"`
	Date      time.Time `json:"date"`
	Type      Status    `json:"type"`
	Note      string    `json:"note"`
	Lead      string    `json:"lead"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DayStatusRecord is the evaluated status of one agent on one day.
type DayStatusRecord struct {
	AgentID         string `json:"agent_id"`
	Name            string `json:"name"`
	Lead            string `json:"lead"`
	Date            string `json:"date"`
	Status          Status `json:"status"`
	LateMinutes     int    `json:"late_minutes"`
	OvertimeMinutes int    `json:"overtime_minutes"`
	Tooltip         string `json:"tooltip,omitempty"`
	OriginalStatus  Status `json:"original_status"`
	Overridden      bool   `json:"is_overridden"`
}

// AgentSummary aggregates the retained day records of one agent over a range.
type AgentSummary struct {
	AgentID            string            `json:"agent_id"`
	Name               string            `json:"name"`
	Lead               string            `json:"lead"`
	Days               []DayStatusRecord `json:"days"`
	LateMinutesSum     int               `json:"late_minutes_sum"`
	DelaysSum          int               `json:"delays_sum"`
	VacationsSum       int               `json:"vacations_sum"`
	JustifiedSum       int               `json:"justified_sum"`
	UnjustifiedSum     int               `json:"unjustified_sum"`
	JustifiedDelaysSum int               `json:"justified_delays_sum"`
}

// ConnectionDetail is one row of the per-connection report: a raw connection
// (or its absence) next to the expected window and the day's final status.
type ConnectionDetail struct {
	AgentID       string    `json:"agent_id"`
	Name          string    `json:"name"`
	Shift         Shift     `json:"shift"`
	Date          string    `json:"date"`
	ExpectedStart TimeOfDay `json:"-"`
	ExpectedEnd   TimeOfDay `json:"-"`
	ActualStart   TimeOfDay `json:"-"`
	ActualEnd     TimeOfDay `json:"-"`
	Status        Status    `json:"status"`
	LateMinutes   int       `json:"late_minutes"`
}
