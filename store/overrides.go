package store

import (
	"agent-attendance/metrics"
	"agent-attendance/models"
	"context"
	"fmt"
	"time"
)

type overrideRow struct {
	AgentID   string `db:"agent_id"`
	Date      string `db:"date"`
	Type      string `db:"type"`
	Note      string `db:"note"`
	Lead      string `db:"lead"`
	UpdatedAt string `db:"updated_at"`
}

func (r overrideRow) model() models.Override {
	day, _ := time.Parse(dateLayout, r.Date)
	return models.Override{
		AgentID:   r.AgentID,
		Date:      day,
		Type:      models.Status(r.Type),
		Note:      r.Note,
		Lead:      r.Lead,
		UpdatedAt: parseTimestamp(r.UpdatedAt),
	}
}

const overrideColumns = `agent_id, date, type, note, lead, updated_at`

// UpsertOverride creates or replaces the override of (o.AgentID, o.Date) and
// returns the stored record.
func (s *Store) UpsertOverride(ctx context.Context, o models.Override) (models.Override, error) {
	o.Date = models.Day(o.Date)
	o.Type = models.NormalizeStatus(string(o.Type))
	o.UpdatedAt = s.now().UTC()

	row := overrideRow{
		AgentID:   o.AgentID,
		Date:      formatDate(o.Date),
		Type:      string(o.Type),
		Note:      o.Note,
		Lead:      o.Lead,
		UpdatedAt: formatTimestamp(o.UpdatedAt),
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO justifications (`+overrideColumns+`)
		VALUES (:agent_id, :date, :type, :note, :lead, :updated_at)
		ON CONFLICT (agent_id, date) DO UPDATE SET
			type = excluded.type,
			note = excluded.note,
			lead = excluded.lead,
			updated_at = excluded.updated_at`, row)
	metrics.ObserveStore("upsert_override", err)
	if err != nil {
		return models.Override{}, fmt.Errorf("failed to save override: %w", err)
	}

	s.logger.Info().
		Str("agent_id", o.AgentID).
		Str("date", row.Date).
		Str("type", row.Type).
		Msg("override saved")
	return s.Override(ctx, o.AgentID, o.Date)
}

// DeleteOverride removes the override of (agentID, day). Removing a missing
// override is not an error.
func (s *Store) DeleteOverride(ctx context.Context, agentID string, day time.Time) error {
	date := formatDate(models.Day(day))
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM justifications WHERE agent_id = ? AND date = ?`),
		agentID, date)
	metrics.ObserveStore("delete_override", err)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info().Str("agent_id", agentID).Str("date", date).Msg("override removed")
	}
	return nil
}

// Override returns the override of (agentID, day) or ErrNotFound.
func (s *Store) Override(ctx context.Context, agentID string, day time.Time) (models.Override, error) {
	var row overrideRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+overrideColumns+` FROM justifications WHERE agent_id = ? AND date = ?`),
		agentID, formatDate(models.Day(day)))
	err = notFound(err)
	metrics.ObserveStore("get_override", err)
	if err != nil {
		return models.Override{}, fmt.Errorf("failed to get override: %w", err)
	}
	return row.model(), nil
}

// Overrides returns every override dated within [start, end], keyed by
// (agent, date).
func (s *Store) Overrides(ctx context.Context, start, end time.Time) (map[models.DayKey]models.Override, error) {
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+overrideColumns+` FROM justifications WHERE date >= ? AND date <= ?`),
		formatDate(models.Day(start)), formatDate(models.Day(end)))
	metrics.ObserveStore("range_overrides", err)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	out := make(map[models.DayKey]models.Override, len(rows))
	for _, r := range rows {
		o := r.model()
		out[models.KeyOf(o.AgentID, o.Date)] = o
	}
	return out, nil
}

// ListOverrides returns every stored override, most recently updated first.
func (s *Store) ListOverrides(ctx context.Context) ([]models.Override, error) {
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+overrideColumns+` FROM justifications ORDER BY updated_at DESC, agent_id, date`)
	metrics.ObserveStore("list_overrides", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	out := make([]models.Override, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
