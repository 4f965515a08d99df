// Package actuals reduces raw clock-in/clock-out records to one connection
// envelope per agent and day, and provides data sources for those records.
package actuals

import (
	"agent-attendance/models"
	"time"
)

// Aggregate reduces the records of one (agent, date) pair to the earliest valid
// start and the latest valid end, taken independently. ok is false when no
// record has a valid start or none has a valid end.
func Aggregate(records []models.ActualConnection) (models.Envelope, bool) {
	var env models.Envelope
	for _, r := range records {
		if r.Start.Valid && (!env.Start.Valid || r.Start.Offset < env.Start.Offset) {
			env.Start = r.Start
		}
		if r.End.Valid && (!env.End.Valid || r.End.Offset > env.End.Offset) {
			env.End = r.End
		}
	}
	if !env.Start.Valid || !env.End.Valid {
		return models.Envelope{}, false
	}
	return env, true
}

// Group buckets records by (agent, date), preserving input order within a bucket.
func Group(records []models.ActualConnection) map[models.DayKey][]models.ActualConnection {
	out := make(map[models.DayKey][]models.ActualConnection)
	for _, r := range records {
		key := models.KeyOf(r.AgentID, r.Date)
		out[key] = append(out[key], r)
	}
	return out
}

// Index groups records and reduces every group. Pairs without a complete
// envelope are left out.
func Index(records []models.ActualConnection) map[models.DayKey]models.Envelope {
	groups := Group(records)
	out := make(map[models.DayKey]models.Envelope, len(groups))
	for key, rows := range groups {
		if env, ok := Aggregate(rows); ok {
			out[key] = env
		}
	}
	return out
}

// Filter keeps the records of agentIDs dated within [start, end]. A nil
// agentIDs keeps every agent.
func Filter(records []models.ActualConnection, agentIDs []string, start, end time.Time) []models.ActualConnection {
	var wanted map[string]bool
	if agentIDs != nil {
		wanted = make(map[string]bool, len(agentIDs))
		for _, id := range agentIDs {
			wanted[id] = true
		}
	}
	start, end = models.Day(start), models.Day(end)

	var out []models.ActualConnection
	for _, r := range records {
		if wanted != nil && !wanted[r.AgentID] {
			continue
		}
		d := models.Day(r.Date)
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, r)
	}
	return out
}
