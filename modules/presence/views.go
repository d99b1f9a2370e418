package presence

import "sync"

// Views records which conversation each user currently has open.
// With several devices the last write wins.
type Views struct {
	mu     sync.RWMutex
	active map[string]string
}

// NewViews creates an empty registry.
func NewViews() *Views {
	return &Views{active: make(map[string]string)}
}

// SetActiveConversation sets the open conversation of userID; an empty
// conversationID clears it.
func (v *Views) SetActiveConversation(userID, conversationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if conversationID == "" {
		delete(v.active, userID)
		return
	}
	v.active[userID] = conversationID
}

// ClearIf clears the active view of userID only when it still points at
// conversationID, so a closing device does not clear another device's view.
func (v *Views) ClearIf(userID, conversationID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active[userID] == conversationID {
		delete(v.active, userID)
	}
}

// ActiveConversation returns the open conversation of userID, or "".
func (v *Views) ActiveConversation(userID string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active[userID]
}

// IsViewing reports whether userID has conversationID open.
func (v *Views) IsViewing(userID, conversationID string) bool {
	return conversationID != "" && v.ActiveConversation(userID) == conversationID
}

// Sessions counts live client sessions per user.
type Sessions struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSessions creates an empty counter.
func NewSessions() *Sessions {
	return &Sessions{counts: make(map[string]int)}
}

// Open registers a session and returns the user's session count.
func (s *Sessions) Open(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID]++
	return s.counts[userID]
}

// Close unregisters a session and reports whether it was the last one.
func (s *Sessions) Close(userID string) (last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[userID]
	if n <= 1 {
		delete(s.counts, userID)
		return n == 1
	}
	s.counts[userID] = n - 1
	return false
}

// Count returns the number of open sessions of userID.
func (s *Sessions) Count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID]
}

// Total returns the number of open sessions across users.
func (s *Sessions) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}
