package actuals

import (
	customerrors "agent-attendance/errors"
	"agent-attendance/models"
	"agent-attendance/parser"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Static serves a fixed set of records.
type Static []models.ActualConnection

// Connections returns the records of agentIDs within [start, end].
func (s Static) Connections(_ context.Context, agentIDs []string, start, end time.Time) ([]models.ActualConnection, error) {
	return Filter(s, agentIDs, start, end), nil
}

// FileSource serves records from an actuals CSV file. The parsed file is
// cached until Reload is called, so the caller decides when changes on disk
// become visible.
type FileSource struct {
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	rows   []models.ActualConnection
	loaded bool
}

// NewFileSource creates a source for the CSV at path. Nothing is read until
// the first lookup.
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("component", "actuals").Logger(),
	}
}

// Path returns the backing file.
func (s *FileSource) Path() string {
	return s.path
}

// Reload re-reads the backing file. On failure the previous rows are kept.
func (s *FileSource) Reload() error {
	rows, err := s.read()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("actuals reload failed, keeping previous rows")
		return err
	}
	s.mu.Lock()
	s.rows, s.loaded = rows, true
	s.mu.Unlock()
	return nil
}

// Connections returns the records of agentIDs within [start, end]. A missing
// file means no connections have been recorded yet.
func (s *FileSource) Connections(_ context.Context, agentIDs []string, start, end time.Time) ([]models.ActualConnection, error) {
	rows, err := s.load()
	if err != nil {
		return nil, err
	}
	return Filter(rows, agentIDs, start, end), nil
}

func (s *FileSource) load() ([]models.ActualConnection, error) {
	s.mu.RLock()
	if s.loaded {
		rows := s.rows
		s.mu.RUnlock()
		return rows, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.rows, nil
	}
	rows, err := s.read()
	if err != nil {
		return nil, err
	}
	s.rows, s.loaded = rows, true
	return rows, nil
}

func (s *FileSource) read() ([]models.ActualConnection, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn().Str("path", s.path).Msg("actuals file not found, assuming no connections")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening actuals file: %w", err)
	}
	defer f.Close()

	rows, err := parser.ParseActuals(f)
	if errors.Is(err, customerrors.ErrEmptyInput) {
		rows, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing actuals file: %w", err)
	}
	s.logger.Info().Str("path", s.path).Int("records", len(rows)).Msg("actuals loaded")
	return rows, nil
}
