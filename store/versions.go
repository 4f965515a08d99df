package store

import (
	"agent-attendance/metrics"
	"agent-attendance/models"
	"agent-attendance/parser"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type versionRow struct {
	ID            string `db:"id"`
	EffectiveFrom string `db:"effective_from"`
	CreatedAt     string `db:"created_at"`
	Note          string `db:"note"`
}

type entryRow struct {
	VersionID     string        `db:"version_id"`
	Seq           int           `db:"seq"`
	AgentID       string        `db:"agent_id"`
	Name          string        `db:"name"`
	Lead          string        `db:"lead"`
	Shift         string        `db:"shift"`
	WorkingDays   string        `db:"working_days"`
	DaysOff       string        `db:"days_off"`
	ExpectedStart sql.NullInt64 `db:"expected_start"`
	ExpectedEnd   sql.NullInt64 `db:"expected_end"`
}

func toSeconds(t models.TimeOfDay) sql.NullInt64 {
	if !t.Valid {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(t.Offset / time.Second), Valid: true}
}

func fromSeconds(v sql.NullInt64) models.TimeOfDay {
	if !v.Valid {
		return models.TimeOfDay{}
	}
	return models.TimeOfDay{Offset: time.Duration(v.Int64) * time.Second, Valid: true}
}

func (r entryRow) model() models.ScheduleEntry {
	return models.ScheduleEntry{
		AgentID:       r.AgentID,
		Name:          r.Name,
		Lead:          r.Lead,
		Shift:         models.Shift(r.Shift),
		WorkingDays:   parser.ParseDays(r.WorkingDays),
		DaysOff:       parser.ParseDays(r.DaysOff),
		ExpectedStart: fromSeconds(r.ExpectedStart),
		ExpectedEnd:   fromSeconds(r.ExpectedEnd),
	}
}

// SaveVersion publishes a new schedule version effective from v.EffectiveFrom.
// Versions are append-only: publishing a second version for a date that
// already has one fails with ErrVersionExists.
func (s *Store) SaveVersion(ctx context.Context, v models.ScheduleVersion) (models.ScheduleVersion, error) {
	v.ID = uuid.NewString()
	v.EffectiveFrom = models.Day(v.EffectiveFrom)
	v.CreatedAt = s.now().UTC()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var existing int
		err := tx.GetContext(ctx, &existing,
			tx.Rebind(`SELECT COUNT(*) FROM schedule_versions WHERE effective_from = ?`),
			formatDate(v.EffectiveFrom))
		if err != nil {
			return fmt.Errorf("failed to check schedule versions: %w", err)
		}
		if existing > 0 {
			return ErrVersionExists
		}

		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO schedule_versions (id, effective_from, created_at, note)
			VALUES (:id, :effective_from, :created_at, :note)`, versionRow{
			ID:            v.ID,
			EffectiveFrom: formatDate(v.EffectiveFrom),
			CreatedAt:     formatTimestamp(v.CreatedAt),
			Note:          v.Note,
		})
		if err != nil {
			return fmt.Errorf("failed to insert schedule version: %w", err)
		}

		for i, e := range v.Entries {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO schedule_entries (version_id, seq, agent_id, name, lead, shift,
					working_days, days_off, expected_start, expected_end)
				VALUES (:version_id, :seq, :agent_id, :name, :lead, :shift,
					:working_days, :days_off, :expected_start, :expected_end)`, entryRow{
				VersionID:     v.ID,
				Seq:           i,
				AgentID:       e.AgentID,
				Name:          e.Name,
				Lead:          e.Lead,
				Shift:         string(e.Shift),
				WorkingDays:   e.WorkingDays.String(),
				DaysOff:       e.DaysOff.String(),
				ExpectedStart: toSeconds(e.ExpectedStart),
				ExpectedEnd:   toSeconds(e.ExpectedEnd),
			})
			if err != nil {
				return fmt.Errorf("failed to insert schedule entry %d: %w", i, err)
			}
		}
		return nil
	})
	metrics.ObserveStore("save_version", err)
	if err != nil {
		return models.ScheduleVersion{}, err
	}

	s.logger.Info().
		Str("version_id", v.ID).
		Str("effective_from", formatDate(v.EffectiveFrom)).
		Int("agents", len(v.Entries)).
		Msg("schedule version published")
	return v, nil
}

// ListVersions returns every published version with its entries, ordered by
// effective-from date.
func (s *Store) ListVersions(ctx context.Context) ([]models.ScheduleVersion, error) {
	var versions []versionRow
	err := s.db.SelectContext(ctx, &versions,
		`SELECT id, effective_from, created_at, note FROM schedule_versions ORDER BY effective_from, created_at`)
	if err != nil {
		metrics.ObserveStore("list_versions", err)
		return nil, fmt.Errorf("failed to list schedule versions: %w", err)
	}

	var entries []entryRow
	err = s.db.SelectContext(ctx, &entries, `
		SELECT version_id, seq, agent_id, name, lead, shift, working_days, days_off,
			expected_start, expected_end
		FROM schedule_entries ORDER BY version_id, seq`)
	metrics.ObserveStore("list_versions", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule entries: %w", err)
	}

	byVersion := make(map[string][]models.ScheduleEntry, len(versions))
	for _, e := range entries {
		byVersion[e.VersionID] = append(byVersion[e.VersionID], e.model())
	}

	out := make([]models.ScheduleVersion, 0, len(versions))
	for _, v := range versions {
		from, err := time.Parse(dateLayout, v.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("invalid effective date %q on version %s: %w", v.EffectiveFrom, v.ID, err)
		}
		out = append(out, models.ScheduleVersion{
			ID:            v.ID,
			EffectiveFrom: from,
			CreatedAt:     parseTimestamp(v.CreatedAt),
			Note:          v.Note,
			Entries:       byVersion[v.ID],
		})
	}
	return out, nil
}
