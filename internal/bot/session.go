package bot

import (
	"sync"

	"finbot/internal/core"
	"finbot/internal/draft"
)

// State is the position of a chat in the conversation.
type State int

const (
	StateIdle State = iota
	StateMenu
	StateFieldInput
	StatePersisting
	StateRecent
	StateRowDetail
	StateRowEdit
	StateBalances
	StateClassifications
	StatePlans
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMenu:
		return "menu"
	case StateFieldInput:
		return "field_input"
	case StatePersisting:
		return "persisting"
	case StateRecent:
		return "recent"
	case StateRowDetail:
		return "row_detail"
	case StateRowEdit:
		return "row_edit"
	case StateBalances:
		return "balances"
	case StateClassifications:
		return "classifications"
	case StatePlans:
		return "plans"
	default:
		return "unknown"
	}
}

// Session is the conversation of one chat. Its mutex is held for the whole
// handling of an event, so a chat's events never interleave.
type Session struct {
	mu     sync.Mutex
	chatID int64

	state    State
	field    draft.Field // field being edited in StateFieldInput
	returnTo State       // screen a field editor returns to
	drafts   draft.Store

	// recent is the last fetched window of operations. Any write makes it
	// stale; it is refetched before rows are picked from it again.
	recent   []core.Row
	selected *core.Row

	choices     []string // values listed by the open choice editor
	year, month int      // calendar page of the date editor
	period      core.Period
}

// State returns the current state. It is meant for tests and diagnostics.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Draft returns the draft in progress, if any.
func (s *Session) Draft() *draft.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts.Current()
}

type registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func newRegistry() *registry {
	return &registry{sessions: map[int64]*Session{}}
}

func (r *registry) get(chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		s = &Session{chatID: chatID}
		r.sessions[chatID] = s
	}
	return s
}
