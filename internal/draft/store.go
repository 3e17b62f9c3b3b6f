package draft

import "finbot/internal/core"

// Store keeps the single draft of one chat session. It is not safe for
// concurrent use; the owning session serializes access.
type Store struct {
	current *Draft
}

// StartNew discards any draft in progress and starts an empty one.
func (s *Store) StartNew(mode Mode) *Draft {
	s.current = New(mode)
	return s.current
}

// StartEdit discards any draft in progress and starts editing row.
func (s *Store) StartEdit(row core.Row) *Draft {
	s.current = FromRow(row)
	return s.current
}

// Adopt replaces the draft in progress with d.
func (s *Store) Adopt(d *Draft) *Draft {
	s.current = d
	return d
}

// Current returns the draft in progress or nil.
func (s *Store) Current() *Draft { return s.current }

// Clear discards the draft in progress.
func (s *Store) Clear() { s.current = nil }
