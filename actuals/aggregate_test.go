package actuals_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agent-attendance/actuals"
	"agent-attendance/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var june2 = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func conn(agent string, day time.Time, start, end models.TimeOfDay) models.ActualConnection {
	return models.ActualConnection{AgentID: agent, Date: day, Start: start, End: end}
}

func TestAggregate(t *testing.T) {
	tests := map[string]struct {
		records  []models.ActualConnection
		expected models.Envelope
		ok       bool
	}{
		"SingleRecord": {
			records:  []models.ActualConnection{conn("A1", june2, models.Clock(9, 0, 0), models.Clock(17, 0, 0))},
			expected: models.Envelope{Start: models.Clock(9, 0, 0), End: models.Clock(17, 0, 0)},
			ok:       true,
		},
		"Reconnects_Envelope": {
			records: []models.ActualConnection{
				conn("A1", june2, models.Clock(12, 30, 0), models.Clock(17, 10, 0)),
				conn("A1", june2, models.Clock(9, 5, 0), models.Clock(12, 0, 0)),
			},
			expected: models.Envelope{Start: models.Clock(9, 5, 0), End: models.Clock(17, 10, 0)},
			ok:       true,
		},
		"SidesTakenIndependently": {
			records: []models.ActualConnection{
				conn("A1", june2, models.Clock(9, 0, 0), models.TimeOfDay{}),
				conn("A1", june2, models.TimeOfDay{}, models.Clock(18, 0, 0)),
			},
			expected: models.Envelope{Start: models.Clock(9, 0, 0), End: models.Clock(18, 0, 0)},
			ok:       true,
		},
		"NoEnd": {
			records: []models.ActualConnection{conn("A1", june2, models.Clock(9, 0, 0), models.TimeOfDay{})},
		},
		"NoStart": {
			records: []models.ActualConnection{conn("A1", june2, models.TimeOfDay{}, models.Clock(17, 0, 0))},
		},
		"NoRecords": {},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := actuals.Aggregate(tt.records)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIndex(t *testing.T) {
	june3 := june2.AddDate(0, 0, 1)
	idx := actuals.Index([]models.ActualConnection{
		conn("A1", june2, models.Clock(9, 5, 0), models.Clock(12, 0, 0)),
		conn("A1", june2, models.Clock(12, 30, 0), models.Clock(17, 10, 0)),
		conn("A1", june3, models.Clock(9, 0, 0), models.TimeOfDay{}),
		conn("B2", june2, models.Clock(22, 0, 0), models.Clock(6, 0, 0)),
	})

	assert.Len(t, idx, 2)
	assert.Equal(t, models.Envelope{Start: models.Clock(9, 5, 0), End: models.Clock(17, 10, 0)}, idx[models.KeyOf("A1", june2)])
	_, ok := idx[models.KeyOf("A1", june3)]
	assert.False(t, ok)
}

func TestFilter(t *testing.T) {
	rows := []models.ActualConnection{
		conn("A1", june2, models.Clock(9, 0, 0), models.Clock(17, 0, 0)),
		conn("B2", june2, models.Clock(9, 0, 0), models.Clock(17, 0, 0)),
		conn("A1", june2.AddDate(0, 0, 5), models.Clock(9, 0, 0), models.Clock(17, 0, 0)),
	}

	assert.Len(t, actuals.Filter(rows, nil, june2, june2), 2)
	assert.Len(t, actuals.Filter(rows, []string{"A1"}, june2, june2.AddDate(0, 0, 7)), 2)
	assert.Empty(t, actuals.Filter(rows, []string{}, june2, june2))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actuals.csv")
	src := actuals.NewFileSource(path, zerolog.Nop())
	ctx := context.Background()

	got, err := src.Connections(ctx, nil, june2, june2)
	require.NoError(t, err)
	assert.Empty(t, got, "missing file means no connections")

	header := "date,agent_id,name,shift,actual_start,actual_end\n"
	require.NoError(t, os.WriteFile(path, []byte(header+"06/02/2025,A1,Ana,Morning,09:00,17:00\n"), 0o600))

	got, err = src.Connections(ctx, nil, june2, june2)
	require.NoError(t, err)
	assert.Empty(t, got, "cached until reloaded")

	require.NoError(t, src.Reload())
	got, err = src.Connections(ctx, []string{"A1"}, june2, june2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Clock(9, 0, 0), got[0].Start)
}

func TestFileSource_ReloadFailureKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actuals.csv")
	header := "date,agent_id,name,shift,actual_start,actual_end\n"
	require.NoError(t, os.WriteFile(path, []byte(header+"06/02/2025,A1,Ana,Morning,09:00,17:00\n"), 0o600))

	src := actuals.NewFileSource(path, zerolog.Nop())
	ctx := context.Background()
	got, err := src.Connections(ctx, nil, june2, june2)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A half-written file lacks the required columns.
	require.NoError(t, os.WriteFile(path, []byte("date,agent_id\n"), 0o600))
	require.Error(t, src.Reload())

	got, err = src.Connections(ctx, []string{"A1"}, june2, june2)
	require.NoError(t, err)
	require.Len(t, got, 1, "previous rows still served")
	assert.Equal(t, models.Clock(17, 0, 0), got[0].End)
}

func TestStatic(t *testing.T) {
	src := actuals.Static{conn("A1", june2, models.Clock(9, 0, 0), models.Clock(17, 0, 0))}
	got, err := src.Connections(context.Background(), []string{"B2"}, june2, june2)
	require.NoError(t, err)
	assert.Empty(t, got)
}
