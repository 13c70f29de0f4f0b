package models

// State is the whole persisted record: settings, the session collection,
// the live message list and the id of the session it belongs to.
type State struct {
	Settings         Settings  `json:"settings"`
	Sessions         []Session `json:"sessions"`
	Messages         []Message `json:"messages"`
	CurrentSessionID string    `json:"currentSessionId,omitempty"`
}

// NewState returns the empty state of a fresh install.
func NewState() *State {
	return &State{
		Settings: DefaultSettings(),
		Sessions: []Session{},
		Messages: []Message{},
	}
}

// Clone deep-copies the state.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	out := &State{
		Settings:         s.Settings,
		Sessions:         make([]Session, len(s.Sessions)),
		Messages:         CloneMessages(s.Messages),
		CurrentSessionID: s.CurrentSessionID,
	}
	for i, session := range s.Sessions {
		out.Sessions[i] = session.Clone()
	}
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return out
}

// SessionIndex returns the position of the session with id, or -1.
func (s *State) SessionIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return i
		}
	}
	return -1
}
