// Package attendance turns expected shifts, actual connections and manual
// overrides into per-day statuses and per-agent summaries.
package attendance

import (
	"agent-attendance/models"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultToleranceMinutes is the lateness forgiven before a day counts as a delay.
const DefaultToleranceMinutes = 2

// DefaultOverrideCodes are the override codes recognized out of the box.
var DefaultOverrideCodes = []models.Status{
	models.StatusOnTime,
	models.StatusJustified,
	models.StatusVacation,
	models.StatusUnjustified,
	models.StatusDelay,
	"H",
	"C",
	"ML",
}

// CodeSet is the set of recognized override codes.
type CodeSet map[models.Status]bool

// NewCodeSet builds a CodeSet from codes, normalizing their case.
func NewCodeSet(codes ...models.Status) CodeSet {
	out := make(CodeSet, len(codes))
	for _, c := range codes {
		if c = models.NormalizeStatus(string(c)); c != "" {
			out[c] = true
		}
	}
	return out
}

// ParseCodeSet parses a comma-separated list such as "A,J,V".
func ParseCodeSet(list string) CodeSet {
	var codes []models.Status
	for _, part := range strings.Split(list, ",") {
		codes = append(codes, models.Status(part))
	}
	return NewCodeSet(codes...)
}

// Recognized reports whether code is in the set.
func (c CodeSet) Recognized(code models.Status) bool {
	return c[models.NormalizeStatus(string(code))]
}

// Evaluator computes the status of one agent on one day. It is a pure
// function of its inputs; Today is injected rather than read from the clock.
type Evaluator struct {
	Today     time.Time
	Tolerance int
	Codes     CodeSet
}

// NewEvaluator returns an evaluator with the default tolerance and codes.
func NewEvaluator(today time.Time) Evaluator {
	return Evaluator{
		Today:     models.Day(today),
		Tolerance: DefaultToleranceMinutes,
		Codes:     NewCodeSet(DefaultOverrideCodes...),
	}
}

// Evaluate computes the day record for entry on day. env is the aggregated
// actual connection, nil when none was recorded. ov is the override for the
// (agent, day) pair, nil when none exists.
func (e Evaluator) Evaluate(entry models.ScheduleEntry, day time.Time, env *models.Envelope, ov *models.Override) models.DayStatusRecord {
	day = models.Day(day)
	original, late, overtime := e.original(entry, day, env)

	rec := models.DayStatusRecord{
		AgentID:        entry.AgentID,
		Name:           entry.Name,
		Lead:           entry.Lead,
		Date:           day.Format(models.DateLayout),
		Status:         original,
		OriginalStatus: original,
	}

	if ov != nil && e.Codes.Recognized(ov.Type) {
		rec.Overridden = true
		rec.Status = models.NormalizeStatus(string(ov.Type))
		switch rec.Status {
		case models.StatusOnTime:
			late, overtime = 0, 0
		case models.StatusDelay:
			rec.Tooltip = delayTooltip(late)
		}
	} else if rec.Status == models.StatusDelay {
		rec.Tooltip = delayTooltip(late)
	}

	rec.LateMinutes = late
	rec.OvertimeMinutes = overtime
	return rec
}

// original computes the pre-override status with its lateness and overtime.
func (e Evaluator) original(entry models.ScheduleEntry, day time.Time, env *models.Envelope) (models.Status, int, int) {
	if day.After(models.Day(e.Today)) {
		return models.StatusPending, 0, 0
	}
	if entry.DaysOff.Has(day.Weekday()) {
		return models.StatusDayOff, 0, 0
	}
	expStart, expEnd, ok := entry.ExpectedInterval(day)
	if !ok {
		return models.StatusDayOff, 0, 0
	}
	if env == nil {
		return models.StatusUnjustified, 0, 0
	}
	actStart, actEnd, ok := models.Interval(day, env.Start, env.End)
	if !ok {
		return models.StatusUnjustified, 0, 0
	}

	lateEntry := positiveMinutes(actStart.Sub(expStart))
	earlyLeave := positiveMinutes(expEnd.Sub(actEnd))
	overtime := positiveMinutes(expStart.Sub(actStart)) + positiveMinutes(actEnd.Sub(expEnd))

	if raw := lateEntry + earlyLeave; raw > e.Tolerance {
		return models.StatusDelay, raw, overtime
	}
	return models.StatusOnTime, 0, overtime
}

// positiveMinutes floors d to whole minutes and clamps it at zero.
func positiveMinutes(d time.Duration) int {
	m := int(math.Floor(d.Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

func delayTooltip(late int) string {
	return fmt.Sprintf("Delay: %d minutes", late)
}
