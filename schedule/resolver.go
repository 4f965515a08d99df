// Package schedule selects the roster of expected shifts that governs a given
// calendar date from a versioned, append-only schedule history.
package schedule

import (
	"agent-attendance/metrics"
	"agent-attendance/models"
	"context"
	"fmt"
	"sort"
	"time"
)

// Source returns the roster effective on a calendar date.
type Source interface {
	EffectiveOn(ctx context.Context, day time.Time) ([]models.ScheduleEntry, error)
}

// VersionStore lists every published schedule version with its entries.
type VersionStore interface {
	ListVersions(ctx context.Context) ([]models.ScheduleVersion, error)
}

// Resolver answers roster lookups from an in-memory snapshot of the version
// history. It is read-only after construction and safe for concurrent use.
type Resolver struct {
	base     []models.ScheduleEntry
	versions []models.ScheduleVersion
}

// NewResolver builds a resolver over base and versions. Versions are ordered by
// effective-from date; if two share a date the most recently created wins.
func NewResolver(base []models.ScheduleEntry, versions []models.ScheduleVersion) *Resolver {
	sorted := make([]models.ScheduleVersion, len(versions))
	copy(sorted, versions)
	for i := range sorted {
		sorted[i].EffectiveFrom = models.Day(sorted[i].EffectiveFrom)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EffectiveFrom.Equal(sorted[j].EffectiveFrom) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].EffectiveFrom.Before(sorted[j].EffectiveFrom)
	})

	deduped := sorted[:0]
	for _, v := range sorted {
		if n := len(deduped); n > 0 && deduped[n-1].EffectiveFrom.Equal(v.EffectiveFrom) {
			deduped[n-1] = v
			continue
		}
		deduped = append(deduped, v)
	}

	return &Resolver{base: base, versions: deduped}
}

// Load reads the version history from store and builds a Resolver with base as
// the fallback schedule.
func Load(ctx context.Context, store VersionStore, base []models.ScheduleEntry) (*Resolver, error) {
	versions, err := store.ListVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule versions: %w", err)
	}
	return NewResolver(base, versions), nil
}

// VersionOn returns the version with the greatest effective-from date not
// after day. ok is false when no version applies.
func (r *Resolver) VersionOn(day time.Time) (models.ScheduleVersion, bool) {
	day = models.Day(day)
	i := sort.Search(len(r.versions), func(i int) bool {
		return r.versions[i].EffectiveFrom.After(day)
	})
	if i == 0 {
		return models.ScheduleVersion{}, false
	}
	return r.versions[i-1], true
}

// EffectiveOn returns the roster governing day. A version with no entries
// yields an empty roster; the base schedule only applies when no version does.
func (r *Resolver) EffectiveOn(_ context.Context, day time.Time) ([]models.ScheduleEntry, error) {
	if v, ok := r.VersionOn(day); ok {
		return v.Entries, nil
	}
	return r.base, nil
}

// Versions returns the ordered version history.
func (r *Resolver) Versions() []models.ScheduleVersion {
	return r.versions
}

// Base returns the fallback schedule.
func (r *Resolver) Base() []models.ScheduleEntry {
	return r.base
}

// HasAgent reports whether agentID appears in the base schedule or any version.
func (r *Resolver) HasAgent(agentID string) bool {
	for _, e := range r.base {
		if e.AgentID == agentID {
			return true
		}
	}
	for _, v := range r.versions {
		for _, e := range v.Entries {
			if e.AgentID == agentID {
				return true
			}
		}
	}
	return false
}

// Cache memoizes a Source per distinct date. It is meant to live for a single
// range query and is not safe for concurrent use.
type Cache struct {
	src    Source
	byDate map[string][]models.ScheduleEntry
}

// NewCache wraps src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, byDate: make(map[string][]models.ScheduleEntry)}
}

// EffectiveOn returns the cached roster for day, asking the source on a miss.
func (c *Cache) EffectiveOn(ctx context.Context, day time.Time) ([]models.ScheduleEntry, error) {
	key := models.Day(day).Format(models.DateLayout)
	if roster, ok := c.byDate[key]; ok {
		return roster, nil
	}
	metrics.ScheduleLookupsTotal.Inc()
	roster, err := c.src.EffectiveOn(ctx, day)
	if err != nil {
		return nil, err
	}
	c.byDate[key] = roster
	return roster, nil
}
