package httpapi

import (
	"agent-attendance/attendance"
	customerrors "agent-attendance/errors"
	"agent-attendance/formatter"
	"agent-attendance/models"
	"agent-attendance/parser"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// requiredDate reads and parses a required date query parameter.
func requiredDate(r *http.Request, name string) (time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s", errMissingParam, name)
	}
	return parser.ParseDate(v)
}

func rangeQuery(r *http.Request) (attendance.Query, error) {
	start, err := requiredDate(r, "start")
	if err != nil {
		return attendance.Query{}, err
	}
	end, err := requiredDate(r, "end")
	if err != nil {
		return attendance.Query{}, err
	}
	q := r.URL.Query()
	return attendance.Query{
		Start:   start,
		End:     end,
		Lead:    q.Get("lead"),
		AgentID: q.Get("agent_id"),
		Status:  q.Get("status"),
	}, nil
}

func wantsCSV(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "csv")
}

// GET /attendance?start&end&lead&agent_id&status[&format=csv]
func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	q, err := rangeQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summaries, err := s.engine.Compute(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if wantsCSV(r) {
		writeCSV(w, "attendance.csv", formatter.FormatCSV(&formatter.Report{Start: q.Start, End: q.End, Agents: summaries}))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start":  q.Start.Format(models.DateLayout),
		"end":    q.End.Format(models.DateLayout),
		"agents": summaries,
		"total":  len(summaries),
	})
}

type connectionView struct {
	AgentID       string        `json:"agent_id"`
	Name          string        `json:"name"`
	Shift         models.Shift  `json:"shift"`
	Date          string        `json:"date"`
	ExpectedStart string        `json:"expected_connect_time"`
	ExpectedEnd   string        `json:"expected_disconnect_time"`
	ActualStart   string        `json:"actual_connect_time"`
	ActualEnd     string        `json:"actual_disconnect_time"`
	Status        models.Status `json:"status"`
	LateMinutes   int           `json:"late_minutes"`
}

// GET /connections?start&end&lead&agent_id&status[&format=csv]
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	q, err := rangeQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	details, err := s.engine.Connections(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if wantsCSV(r) {
		writeCSV(w, "connections.csv", formatter.FormatConnectionsCSV(details))
		return
	}
	views := make([]connectionView, 0, len(details))
	for _, d := range details {
		views = append(views, connectionView{
			AgentID:       d.AgentID,
			Name:          d.Name,
			Shift:         d.Shift,
			Date:          d.Date,
			ExpectedStart: d.ExpectedStart.String(),
			ExpectedEnd:   d.ExpectedEnd.String(),
			ActualStart:   d.ActualStart.String(),
			ActualEnd:     d.ActualEnd.String(),
			Status:        d.Status,
			LateMinutes:   d.LateMinutes,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": views, "total": len(views)})
}

type justifyRequest struct {
	AgentID string `json:"agent_id"`
	Date    string `json:"date"`
	Type    string `json:"type"`
	Note    string `json:"note"`
	Lead    string `json:"lead"`
}

type overrideView struct {
	AgentID   string        `json:"agent_id"`
	Name      string        `json:"name,omitempty"`
	Date      string        `json:"date"`
	Type      models.Status `json:"type"`
	Note      string        `json:"note"`
	Lead      string        `json:"lead"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func viewOf(o models.Override, name string) overrideView {
	return overrideView{
		AgentID:   o.AgentID,
		Name:      name,
		Date:      o.Date.Format(models.DateLayout),
		Type:      o.Type,
		Note:      o.Note,
		Lead:      o.Lead,
		UpdatedAt: o.UpdatedAt,
	}
}

// knownAgent fails with ErrUnknownAgent unless agentID appears in the base
// schedule or any published version.
func (s *Server) knownAgent(agentID string) error {
	if agentID == "" || !s.schedules.HasAgent(agentID) {
		return fmt.Errorf("%w: %q", customerrors.ErrUnknownAgent, agentID)
	}
	return nil
}

// POST /attendance/justify
func (s *Server) handleJustify(w http.ResponseWriter, r *http.Request) {
	var body justifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	day, err := parser.ParseDate(body.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	agentID := strings.TrimSpace(body.AgentID)
	if err := s.knownAgent(agentID); err != nil {
		s.writeError(w, r, err)
		return
	}
	code := models.NormalizeStatus(body.Type)
	if !s.engine.Codes().Recognized(code) {
		s.writeError(w, r, fmt.Errorf("%w: %q", customerrors.ErrInvalidOverrideType, body.Type))
		return
	}

	saved, err := s.store.UpsertOverride(r.Context(), models.Override{
		AgentID: agentID,
		Date:    day,
		Type:    code,
		Note:    body.Note,
		Lead:    body.Lead,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"message":       "Justification saved",
		"justification": viewOf(saved, ""),
	})
}

// DELETE /attendance/justify?agent_id&date. The agent need not be rostered
// anymore, so overrides of departed agents can still be removed.
func (s *Server) handleUnjustify(w http.ResponseWriter, r *http.Request) {
	day, err := requiredDate(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	agentID := strings.TrimSpace(r.URL.Query().Get("agent_id"))
	if agentID == "" {
		s.writeError(w, r, fmt.Errorf("%w: agent_id", errMissingParam))
		return
	}
	if err := s.store.DeleteOverride(r.Context(), agentID, day); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Justification removed"})
}

// agentNames maps every known agent to its most recent display name.
func (s *Server) agentNames() map[string]string {
	resolver := s.schedules.Resolver()
	names := make(map[string]string)
	for _, e := range resolver.Base() {
		names[e.AgentID] = e.Name
	}
	for _, v := range resolver.Versions() {
		for _, e := range v.Entries {
			names[e.AgentID] = e.Name
		}
	}
	return names
}

// GET /justifications[?format=csv]
func (s *Server) handleJustifications(w http.ResponseWriter, r *http.Request) {
	overrides, err := s.store.ListOverrides(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	names := s.agentNames()

	if wantsCSV(r) {
		writeCSV(w, "justifications.csv", formatter.FormatJustificationsCSV(overrides, names))
		return
	}
	views := make([]overrideView, 0, len(overrides))
	for _, o := range overrides {
		views = append(views, viewOf(o, names[o.AgentID]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"justifications": views, "total": len(views)})
}

type scheduleView struct {
	AgentID       string       `json:"agent_id"`
	Name          string       `json:"name"`
	Lead          string       `json:"lead"`
	Shift         models.Shift `json:"shift"`
	WorkingDays   string       `json:"working_days"`
	DaysOff       string       `json:"days_off"`
	ExpectedStart string       `json:"expected_start"`
	ExpectedEnd   string       `json:"expected_end"`
}

// GET /schedules?lead[&date]. Without a date the base schedule is listed;
// with one, the roster effective on that date.
func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	entries := s.schedules.Base().Entries()
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		day, err := parser.ParseDate(v)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entries, err = s.schedules.EffectiveOn(r.Context(), day); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	lead := strings.TrimSpace(r.URL.Query().Get("lead"))
	views := make([]scheduleView, 0, len(entries))
	for _, e := range entries {
		if lead != "" && !strings.EqualFold(strings.TrimSpace(e.Lead), lead) {
			continue
		}
		views = append(views, scheduleView{
			AgentID:       e.AgentID,
			Name:          e.Name,
			Lead:          e.Lead,
			Shift:         e.Shift,
			WorkingDays:   e.WorkingDays.String(),
			DaysOff:       e.DaysOff.String(),
			ExpectedStart: e.ExpectedStart.String(),
			ExpectedEnd:   e.ExpectedEnd.String(),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		if a, b := strings.ToLower(views[i].Lead), strings.ToLower(views[j].Lead); a != b {
			return a < b
		}
		return strings.ToLower(views[i].Name) < strings.ToLower(views[j].Name)
	})
	writeJSON(w, http.StatusOK, map[string]any{"agents": views, "total": len(views)})
}

type versionView struct {
	ID            string    `json:"id"`
	EffectiveFrom string    `json:"effective_from"`
	CreatedAt     time.Time `json:"created_at"`
	Note          string    `json:"note"`
	Agents        int       `json:"agents"`
}

func versionViewOf(v models.ScheduleVersion) versionView {
	return versionView{
		ID:            v.ID,
		EffectiveFrom: v.EffectiveFrom.Format(models.DateLayout),
		CreatedAt:     v.CreatedAt,
		Note:          v.Note,
		Agents:        len(v.Entries),
	}
}

// GET /schedules/versions
func (s *Server) handleListVersions(w http.ResponseWriter, _ *http.Request) {
	versions := s.schedules.Resolver().Versions()
	views := make([]versionView, 0, len(versions))
	for _, v := range versions {
		views = append(views, versionViewOf(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": views, "total": len(views)})
}

// POST /schedules/versions?effective_from&note with a schedule CSV body.
func (s *Server) handlePublishVersion(w http.ResponseWriter, r *http.Request) {
	from, err := requiredDate(r, "effective_from")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := parser.ParseSchedule(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	saved, err := s.store.SaveVersion(r.Context(), models.ScheduleVersion{
		EffectiveFrom: from,
		Note:          r.URL.Query().Get("note"),
		Entries:       entries,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.schedules.Refresh(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, versionViewOf(saved))
}

type agentOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GET /options lists the leads and agents of the base schedule for filter
// pickers.
func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	entries := s.schedules.Base().Entries()
	seen := make(map[string]bool)
	leads := make([]string, 0)
	agents := make([]agentOption, 0, len(entries))
	for _, e := range entries {
		if e.Lead != "" && !seen[e.Lead] {
			seen[e.Lead] = true
			leads = append(leads, e.Lead)
		}
		agents = append(agents, agentOption{ID: e.AgentID, Name: e.Name})
	}
	sort.Strings(leads)
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "agents": agents})
}
