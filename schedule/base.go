package schedule

import (
	"agent-attendance/models"
	"agent-attendance/parser"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Base holds the static fallback schedule read from a CSV file. Reload swaps
// the snapshot wholesale; readers never observe a partial load.
type Base struct {
	path    string
	logger  zerolog.Logger
	mu      sync.RWMutex
	entries []models.ScheduleEntry
}

// LoadBase reads the schedule file at path.
func LoadBase(path string, logger zerolog.Logger) (*Base, error) {
	b := &Base{
		path:   path,
		logger: logger.With().Str("component", "base_schedule").Logger(),
	}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// NewStaticBase wraps an already parsed schedule. Reload is a no-op for it.
func NewStaticBase(entries []models.ScheduleEntry) *Base {
	return &Base{entries: entries, logger: zerolog.Nop()}
}

// Path returns the backing file, or "" for a static base.
func (b *Base) Path() string {
	return b.path
}

// Entries returns the current snapshot. Callers must not modify it.
func (b *Base) Entries() []models.ScheduleEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries
}

// Reload re-reads the backing file. On failure the previous snapshot is kept.
func (b *Base) Reload() error {
	if b.path == "" {
		return nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("error opening schedule file: %w", err)
	}
	defer f.Close()

	entries, err := parser.ParseSchedule(f)
	if err != nil {
		return fmt.Errorf("error parsing schedule file: %w", err)
	}

	b.mu.Lock()
	b.entries = entries
	b.mu.Unlock()

	b.logger.Info().Str("path", b.path).Int("agents", len(entries)).Msg("base schedule loaded")
	return nil
}
