package schedule

import (
	"agent-attendance/models"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Live is a Source over the base schedule file and the stored version
// history. Refresh rebuilds the snapshot; lookups in flight keep the
// snapshot they started with.
type Live struct {
	base     *Base
	versions VersionStore
	logger   zerolog.Logger

	mu       sync.RWMutex
	resolver *Resolver
}

// NewLive builds the first snapshot. versions may be nil when no store is
// configured, in which case only the base schedule applies.
func NewLive(ctx context.Context, base *Base, versions VersionStore, logger zerolog.Logger) (*Live, error) {
	l := &Live{
		base:     base,
		versions: versions,
		logger:   logger.With().Str("component", "schedule").Logger(),
	}
	if err := l.Refresh(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Refresh re-reads the version history and the current base snapshot.
func (l *Live) Refresh(ctx context.Context) error {
	var (
		resolver *Resolver
		err      error
	)
	if l.versions == nil {
		resolver = NewResolver(l.base.Entries(), nil)
	} else if resolver, err = Load(ctx, l.versions, l.base.Entries()); err != nil {
		return err
	}

	l.mu.Lock()
	l.resolver = resolver
	l.mu.Unlock()

	l.logger.Debug().
		Int("versions", len(resolver.Versions())).
		Int("base_agents", len(resolver.Base())).
		Msg("schedule snapshot refreshed")
	return nil
}

// Resolver returns the current snapshot.
func (l *Live) Resolver() *Resolver {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resolver
}

// Base returns the base schedule holder.
func (l *Live) Base() *Base {
	return l.base
}

// EffectiveOn implements Source.
func (l *Live) EffectiveOn(ctx context.Context, day time.Time) ([]models.ScheduleEntry, error) {
	return l.Resolver().EffectiveOn(ctx, day)
}

// HasAgent reports whether agentID appears in the current snapshot.
func (l *Live) HasAgent(agentID string) bool {
	return l.Resolver().HasAgent(agentID)
}
