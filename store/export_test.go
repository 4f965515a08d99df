package store

import "time"

// SetClock replaces the clock used for updated_at and created_at stamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
