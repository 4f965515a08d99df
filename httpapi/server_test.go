package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agent-attendance/actuals"
	"agent-attendance/attendance"
	"agent-attendance/httpapi"
	"agent-attendance/models"
	"agent-attendance/schedule"
	"agent-attendance/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weekend = models.Weekdays{time.Saturday: true, time.Sunday: true}

func june(d int) time.Time {
	return time.Date(2025, 6, d, 0, 0, 0, 0, time.UTC)
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestServerWithStore(t)
	return h
}

func newTestServerWithStore(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{Path: filepath.Join(t.TempDir(), "attendance.db")}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	base := schedule.NewStaticBase([]models.ScheduleEntry{
		{
			AgentID: "A1", Name: "Ana", Lead: "Lucia", Shift: models.ShiftMorning,
			WorkingDays: weekend.Complement(), DaysOff: weekend,
			ExpectedStart: models.Clock(9, 0, 0), ExpectedEnd: models.Clock(17, 0, 0),
		},
		{
			AgentID: "B2", Name: "Beto", Lead: "bruno", Shift: models.ShiftNight,
			WorkingDays: weekend.Complement(), DaysOff: weekend,
			ExpectedStart: models.Clock(22, 0, 0), ExpectedEnd: models.Clock(6, 0, 0),
		},
		{
			AgentID: "C3", Name: "Carla", Lead: "Lucia", Shift: models.ShiftAfternoon,
			DaysOff: weekend, ExpectedStart: models.Clock(14, 0, 0), ExpectedEnd: models.Clock(22, 0, 0),
		},
	})
	live, err := schedule.NewLive(ctx, base, st, zerolog.Nop())
	require.NoError(t, err)

	connections := actuals.Static{
		{AgentID: "A1", Date: june(2), Start: models.Clock(9, 0, 0), End: models.Clock(17, 0, 0)},
		{AgentID: "A1", Date: june(3), Start: models.Clock(9, 20, 0), End: models.Clock(17, 0, 0)},
		{AgentID: "B2", Date: june(2), Start: models.Clock(22, 5, 0), End: models.Clock(6, 10, 0)},
	}
	engine := attendance.NewEngine(live, connections, st,
		attendance.WithClock(func() time.Time { return june(20) }))

	return httpapi.NewServer(engine, live, st, []string{"http://localhost:5173"}, zerolog.Nop()).Routes(), st
}

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type attendanceResponse struct {
	Start  string                `json:"start"`
	End    string                `json:"end"`
	Agents []models.AgentSummary `json:"agents"`
	Total  int                   `json:"total"`
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"agent-attendance"}`, rec.Body.String())
}

func TestAttendance_Validation(t *testing.T) {
	tests := map[string]struct {
		target string
		code   int
	}{
		"MissingStart":   {target: "/attendance?end=2025-06-03", code: http.StatusBadRequest},
		"MissingEnd":     {target: "/attendance?start=2025-06-03", code: http.StatusBadRequest},
		"BadDate":        {target: "/attendance?start=June&end=2025-06-03", code: http.StatusBadRequest},
		"EndBeforeStart": {target: "/attendance?start=2025-06-05&end=2025-06-03", code: http.StatusBadRequest},
		"Valid":          {target: "/attendance?start=2025-06-02&end=2025-06-03", code: http.StatusOK},
	}

	h := newTestServer(t)
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.target, nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code != http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestAttendance(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/attendance?start=2025-06-02&end=2025-06-03&lead=LUCIA", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp attendanceResponse
	decode(t, rec, &resp)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "A1", resp.Agents[0].AgentID)
	assert.Equal(t, "C3", resp.Agents[1].AgentID)
	assert.Equal(t, models.StatusDelay, resp.Agents[0].Days[1].Status)
	assert.Equal(t, 20, resp.Agents[0].Days[1].LateMinutes)
	assert.Equal(t, "Delay: 20 minutes", resp.Agents[0].Days[1].Tooltip)

	rec = do(t, h, http.MethodGet, "/attendance?start=2025-06-02&end=2025-06-03&status=D", nil)
	decode(t, rec, &resp)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "B2", resp.Agents[0].AgentID, "bruno sorts before Lucia")

	rec = do(t, h, http.MethodGet, "/attendance?start=2025-06-02&end=2025-06-02&format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "agent_id,name,2025-06-02,late_minutes_sum"))
	assert.Equal(t, "B2,Beto,D,5,1,0,0,0,0", lines[1])
}

func TestJustify(t *testing.T) {
	h := newTestServer(t)

	tests := map[string]struct {
		body string
		code int
	}{
		"InvalidJSON":  {body: `{`, code: http.StatusBadRequest},
		"BadDate":      {body: `{"agent_id":"A1","date":"tomorrow","type":"J"}`, code: http.StatusBadRequest},
		"UnknownAgent": {body: `{"agent_id":"ZZ","date":"2025-06-03","type":"J"}`, code: http.StatusNotFound},
		"UnknownType":  {body: `{"agent_id":"A1","date":"2025-06-03","type":"Q"}`, code: http.StatusBadRequest},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/attendance/justify", []byte(tt.body))
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, h, http.MethodPost, "/attendance/justify",
		[]byte(`{"agent_id":"A1","date":"2025-06-03","type":"j","note":"bus strike","lead":"Lucia"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"message":"Justification saved"`)

	var resp attendanceResponse
	decode(t, do(t, h, http.MethodGet, "/attendance?start=2025-06-03&end=2025-06-03&agent_id=A1", nil), &resp)
	require.Len(t, resp.Agents, 1)
	day := resp.Agents[0].Days[0]
	assert.Equal(t, models.StatusJustified, day.Status)
	assert.Equal(t, models.StatusDelay, day.OriginalStatus)
	assert.True(t, day.Overridden)
	assert.Empty(t, day.Tooltip)
	assert.Equal(t, 1, resp.Agents[0].JustifiedDelaysSum)

	rec = do(t, h, http.MethodGet, "/justifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Justifications []struct {
			AgentID string `json:"agent_id"`
			Name    string `json:"name"`
			Date    string `json:"date"`
			Type    string `json:"type"`
			Note    string `json:"note"`
		} `json:"justifications"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Justifications, 1)
	assert.Equal(t, "Ana", list.Justifications[0].Name)
	assert.Equal(t, "2025-06-03", list.Justifications[0].Date)
	assert.Equal(t, "J", list.Justifications[0].Type)

	rec = do(t, h, http.MethodGet, "/justifications?format=csv", nil)
	assert.Contains(t, rec.Body.String(), "A1,Ana,2025-06-03,J,bus strike,Lucia,")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/attendance/justify?agent_id=A1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/attendance/justify?date=2025-06-03", nil).Code)
	rec = do(t, h, http.MethodDelete, "/attendance/justify?agent_id=A1&date=2025-06-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	decode(t, do(t, h, http.MethodGet, "/attendance?start=2025-06-03&end=2025-06-03&agent_id=A1", nil), &resp)
	assert.Equal(t, models.StatusDelay, resp.Agents[0].Days[0].Status)
}

func TestUnjustify_DepartedAgent(t *testing.T) {
	h, st := newTestServerWithStore(t)
	ctx := context.Background()

	// ZZ is in no schedule anymore but still has a stored justification.
	_, err := st.UpsertOverride(ctx, models.Override{AgentID: "ZZ", Date: june(3), Type: "V"})
	require.NoError(t, err)

	rec := do(t, h, http.MethodDelete, "/attendance/justify?agent_id=ZZ&date=2025-06-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"message":"Justification removed"`)

	left, err := st.ListOverrides(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestSchedules(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Agents []struct {
			AgentID       string `json:"agent_id"`
			Lead          string `json:"lead"`
			WorkingDays   string `json:"working_days"`
			DaysOff       string `json:"days_off"`
			ExpectedStart string `json:"expected_start"`
		} `json:"agents"`
		Total int `json:"total"`
	}
	decode(t, rec, &resp)
	require.Equal(t, 3, resp.Total)
	assert.Equal(t, []string{"B2", "A1", "C3"}, []string{resp.Agents[0].AgentID, resp.Agents[1].AgentID, resp.Agents[2].AgentID})
	assert.Equal(t, "Mon, Tue, Wed, Thu, Fri", resp.Agents[1].WorkingDays)
	assert.Equal(t, "Sat, Sun", resp.Agents[1].DaysOff)
	assert.Equal(t, "09:00", resp.Agents[1].ExpectedStart)

	decode(t, do(t, h, http.MethodGet, "/schedules?lead=lucia", nil), &resp)
	assert.Equal(t, 2, resp.Total)
}

func TestScheduleVersions(t *testing.T) {
	h := newTestServer(t)
	csv := "agent_id,Shift,name,lead,working_days,days_off,expected_start,expected_end\n" +
		"D4,Morning,Dora,Marta,\"Mon, Tue, Wed, Thu, Fri\",\"Sat, Sun\",08:00,16:00\n"

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/schedules/versions", []byte(csv)).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/schedules/versions?effective_from=2025-06-04", nil).Code)

	rec := do(t, h, http.MethodPost, "/schedules/versions?effective_from=2025-06-04&note=reorg", []byte(csv))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID            string `json:"id"`
		EffectiveFrom string `json:"effective_from"`
		Agents        int    `json:"agents"`
	}
	decode(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "2025-06-04", created.EffectiveFrom)
	assert.Equal(t, 1, created.Agents)

	rec = do(t, h, http.MethodPost, "/schedules/versions?effective_from=2025-06-04", []byte(csv))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/schedules/versions", nil)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = do(t, h, http.MethodGet, "/schedules?date=2025-06-05", nil)
	assert.Contains(t, rec.Body.String(), `"agent_id":"D4"`)
	assert.NotContains(t, rec.Body.String(), `"agent_id":"A1"`)

	var resp attendanceResponse
	decode(t, do(t, h, http.MethodGet, "/attendance?start=2025-06-03&end=2025-06-04", nil), &resp)
	ids := map[string]int{}
	for _, a := range resp.Agents {
		ids[a.AgentID] = len(a.Days)
	}
	assert.Equal(t, map[string]int{"A1": 1, "B2": 1, "C3": 1, "D4": 1}, ids, "roster switches on the 4th")

	rec = do(t, h, http.MethodPost, "/attendance/justify", []byte(`{"agent_id":"D4","date":"2025-06-04","type":"V"}`))
	assert.Equal(t, http.StatusOK, rec.Code, "agents only in a version can be justified")
}

func TestConnections(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/connections?start=2025-06-02&end=2025-06-02&agent_id=B2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Connections []map[string]any `json:"connections"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Connections, 1)
	assert.Equal(t, "22:05", resp.Connections[0]["actual_connect_time"])
	assert.Equal(t, "06:10", resp.Connections[0]["actual_disconnect_time"])
	assert.Equal(t, "D", resp.Connections[0]["status"])

	rec = do(t, h, http.MethodGet, "/connections?start=2025-06-02&end=2025-06-02&agent_id=C3&format=csv", nil)
	assert.Contains(t, rec.Body.String(), "14:00,22:00,2025-06-02,C3,Carla,Afternoon,,,U,0")
}

func TestOptionsAndMetrics(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"leads":["Lucia","bruno"],"agents":[{"id":"A1","name":"Ana"},{"id":"B2","name":"Beto"},{"id":"C3","name":"Carla"}]}`, rec.Body.String())

	do(t, h, http.MethodGet, "/attendance?start=2025-06-02&end=2025-06-02", nil)
	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "attendance_days_evaluated_total")
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestCORS(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
