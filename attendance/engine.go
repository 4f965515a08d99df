package attendance

import (
	"agent-attendance/actuals"
	"agent-attendance/errors"
	"agent-attendance/metrics"
	"agent-attendance/models"
	"agent-attendance/schedule"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ActualSource returns the raw connections of agentIDs within [start, end].
type ActualSource interface {
	Connections(ctx context.Context, agentIDs []string, start, end time.Time) ([]models.ActualConnection, error)
}

// OverrideSource returns every override dated within [start, end].
type OverrideSource interface {
	Overrides(ctx context.Context, start, end time.Time) (map[models.DayKey]models.Override, error)
}

// Query selects the agents and days of a range computation. Empty filters
// match everything. Status is a comma-separated list of final status codes.
type Query struct {
	Start   time.Time
	End     time.Time
	Lead    string
	AgentID string
	Status  string
}

// Engine computes attendance over date ranges. It holds no per-request state
// and may serve concurrent queries.
type Engine struct {
	schedules schedule.Source
	actuals   ActualSource
	overrides OverrideSource
	now       func() time.Time
	location  *time.Location
	tolerance int
	codes     CodeSet
	logger    zerolog.Logger
	evaluate  evaluateFunc
}

type evaluateFunc func(ev Evaluator, entry models.ScheduleEntry, day time.Time, env *models.Envelope, ov *models.Override) models.DayStatusRecord

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock used to decide which days are still pending.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the timezone in which "today" is determined.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.location = loc }
}

// WithTolerance sets the forgiven lateness in minutes.
func WithTolerance(minutes int) Option {
	return func(e *Engine) { e.tolerance = minutes }
}

// WithCodes sets the recognized override codes.
func WithCodes(codes CodeSet) Option {
	return func(e *Engine) { e.codes = codes }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine wires the three data ports into an Engine.
func NewEngine(schedules schedule.Source, actualSrc ActualSource, overrides OverrideSource, opts ...Option) *Engine {
	e := &Engine{
		schedules: schedules,
		actuals:   actualSrc,
		overrides: overrides,
		now:       time.Now,
		location:  time.UTC,
		tolerance: DefaultToleranceMinutes,
		codes:     NewCodeSet(DefaultOverrideCodes...),
		logger:    zerolog.Nop(),
		evaluate:  Evaluator.Evaluate,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "attendance").Logger()
	return e
}

// Evaluator returns an evaluator pinned to the current date.
func (e *Engine) Evaluator() Evaluator {
	return Evaluator{
		Today:     models.Day(e.now().In(e.location)),
		Tolerance: e.tolerance,
		Codes:     e.codes,
	}
}

// Codes returns the recognized override codes.
func (e *Engine) Codes() CodeSet {
	return e.codes
}

// rangeData is everything fetched at the boundaries of one range query.
type rangeData struct {
	days      []time.Time
	rosters   []map[string]models.ScheduleEntry
	agents    []models.ScheduleEntry
	rows      []models.ActualConnection
	envelopes map[models.DayKey]models.Envelope
	overrides map[models.DayKey]models.Override
	statuses  map[models.Status]bool
	evaluator Evaluator
}

// Compute evaluates every rostered agent-day in the query range and returns one
// summary per agent with at least one retained day, ordered by lead, name and
// agent id.
func (e *Engine) Compute(ctx context.Context, q Query) ([]models.AgentSummary, error) {
	started := time.Now()
	defer func() { metrics.RangeDurationSeconds.Observe(time.Since(started).Seconds()) }()

	data, err := e.prepare(ctx, q)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.AgentSummary, 0, len(data.agents))
	for _, agent := range data.agents {
		summary := models.AgentSummary{
			AgentID: agent.AgentID,
			Name:    agent.Name,
			Lead:    agent.Lead,
			Days:    []models.DayStatusRecord{},
		}
		for i, day := range data.days {
			rec, ok := e.evaluateDay(data, i, agent.AgentID, day)
			if !ok || !data.retains(rec.Status) {
				continue
			}
			accumulate(&summary, rec)
		}
		if len(summary.Days) == 0 {
			continue
		}
		metrics.LateMinutesTotal.Add(float64(summary.LateMinutesSum))
		summaries = append(summaries, summary)
	}

	sortSummaries(summaries)
	metrics.AgentsReported.Set(float64(len(summaries)))
	e.logger.Debug().
		Str("start", data.days[0].Format(models.DateLayout)).
		Int("days", len(data.days)).
		Int("agents", len(summaries)).
		Dur("elapsed", time.Since(started)).
		Msg("range computed")
	return summaries, nil
}

// Connections lists every raw connection of the query range next to the
// expected window and the day's final status. Rostered days without any
// connection produce one row with empty actual times.
func (e *Engine) Connections(ctx context.Context, q Query) ([]models.ConnectionDetail, error) {
	data, err := e.prepare(ctx, q)
	if err != nil {
		return nil, err
	}
	groups := actuals.Group(data.rows)

	var out []models.ConnectionDetail
	for _, agent := range data.agents {
		for i, day := range data.days {
			rec, ok := e.evaluateDay(data, i, agent.AgentID, day)
			if !ok || !data.retains(rec.Status) {
				continue
			}
			entry := data.rosters[i][agent.AgentID]
			detail := models.ConnectionDetail{
				AgentID:       entry.AgentID,
				Name:          entry.Name,
				Shift:         entry.Shift,
				Date:          rec.Date,
				ExpectedStart: entry.ExpectedStart,
				ExpectedEnd:   entry.ExpectedEnd,
				Status:        rec.Status,
				LateMinutes:   rec.LateMinutes,
			}
			rows := groups[models.KeyOf(agent.AgentID, day)]
			if len(rows) == 0 {
				out = append(out, detail)
				continue
			}
			for _, r := range rows {
				detail.ActualStart, detail.ActualEnd = r.Start, r.End
				out = append(out, detail)
			}
		}
	}
	return out, nil
}

// prepare validates q and performs every external lookup the query needs: one
// roster per distinct date, one actuals fetch and one overrides fetch.
func (e *Engine) prepare(ctx context.Context, q Query) (*rangeData, error) {
	start, end := models.Day(q.Start), models.Day(q.End)
	if end.Before(start) {
		return nil, errors.ErrInvalidRange
	}

	data := &rangeData{
		statuses:  parseStatusFilter(q.Status),
		evaluator: e.Evaluator(),
	}

	cache := schedule.NewCache(e.schedules)
	display := make(map[string]models.ScheduleEntry)
	filterLead := make(map[string]string)
	var order []string

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		entries, err := cache.EffectiveOn(ctx, day)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve schedule for %s: %w", day.Format(models.DateLayout), err)
		}
		roster := make(map[string]models.ScheduleEntry, len(entries))
		for _, entry := range entries {
			if entry.AgentID == "" {
				metrics.AgentDaysSkippedTotal.WithLabelValues("missing_agent_id").Inc()
				e.logger.Warn().Str("date", day.Format(models.DateLayout)).Msg("schedule entry without agent id skipped")
				continue
			}
			roster[entry.AgentID] = entry
			if _, seen := display[entry.AgentID]; !seen {
				order = append(order, entry.AgentID)
				filterLead[entry.AgentID] = entry.Lead
			}
			display[entry.AgentID] = entry
		}
		data.days = append(data.days, day)
		data.rosters = append(data.rosters, roster)
	}

	for id, entry := range data.rosters[0] {
		filterLead[id] = entry.Lead
	}

	lead := strings.TrimSpace(q.Lead)
	agentID := strings.TrimSpace(q.AgentID)
	ids := make([]string, 0, len(order))
	for _, id := range order {
		if lead != "" && !strings.EqualFold(strings.TrimSpace(filterLead[id]), lead) {
			continue
		}
		if agentID != "" && id != agentID {
			continue
		}
		data.agents = append(data.agents, display[id])
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return data, nil
	}

	rows, err := e.actuals.Connections(ctx, ids, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load actual connections: %w", err)
	}
	data.rows = rows
	data.envelopes = actuals.Index(rows)

	data.overrides, err = e.overrides.Overrides(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}
	return data, nil
}

// evaluateDay evaluates the agent on the i-th day of the range. ok is false
// when the agent is not rostered that day or the evaluation failed; failures
// are logged and never abort the range.
func (e *Engine) evaluateDay(data *rangeData, i int, agentID string, day time.Time) (rec models.DayStatusRecord, ok bool) {
	entry, rostered := data.rosters[i][agentID]
	if !rostered {
		return rec, false
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.AgentDaysSkippedTotal.WithLabelValues("evaluation_failed").Inc()
			e.logger.Error().
				Str("agent_id", agentID).
				Str("date", day.Format(models.DateLayout)).
				Interface("panic", r).
				Msg("agent-day evaluation failed, skipping")
			rec, ok = models.DayStatusRecord{}, false
		}
	}()

	key := models.KeyOf(agentID, day)
	var env *models.Envelope
	if v, found := data.envelopes[key]; found {
		env = &v
	}
	var ov *models.Override
	if v, found := data.overrides[key]; found {
		ov = &v
	}

	rec = e.evaluate(data.evaluator, entry, day, env, ov)
	metrics.DaysEvaluatedTotal.WithLabelValues(string(rec.Status)).Inc()
	if rec.Overridden {
		metrics.OverridesAppliedTotal.WithLabelValues(string(rec.Status)).Inc()
	}
	return rec, true
}

func (d *rangeData) retains(status models.Status) bool {
	return d.statuses == nil || d.statuses[status]
}

// parseStatusFilter parses a comma-separated, case-insensitive status list.
// An empty list disables filtering.
func parseStatusFilter(list string) map[models.Status]bool {
	var out map[models.Status]bool
	for _, part := range strings.Split(list, ",") {
		code := models.NormalizeStatus(part)
		if code == "" {
			continue
		}
		if out == nil {
			out = make(map[models.Status]bool)
		}
		out[code] = true
	}
	return out
}

// accumulate appends rec to summary and updates the running sums.
func accumulate(summary *models.AgentSummary, rec models.DayStatusRecord) {
	summary.Days = append(summary.Days, rec)
	summary.LateMinutesSum += rec.LateMinutes

	switch rec.Status {
	case models.StatusDelay:
		summary.DelaysSum++
	case models.StatusVacation:
		summary.VacationsSum++
	case models.StatusJustified:
		summary.JustifiedSum++
	case models.StatusUnjustified:
		summary.UnjustifiedSum++
	}

	if rec.OriginalStatus == models.StatusDelay &&
		(rec.Status == models.StatusOnTime || rec.Status == models.StatusJustified) {
		summary.JustifiedDelaysSum++
	}
}

func sortSummaries(summaries []models.AgentSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if la, lb := strings.ToLower(a.Lead), strings.ToLower(b.Lead); la != lb {
			return la < lb
		}
		if na, nb := strings.ToLower(a.Name), strings.ToLower(b.Name); na != nb {
			return na < nb
		}
		return a.AgentID < b.AgentID
	})
}
