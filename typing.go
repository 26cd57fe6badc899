package adafri

import (
	"sync"
	"time"
)

const (
	// DefaultTypingThrottle is the minimum gap between outbound typing_start
	// signals for one conversation.
	DefaultTypingThrottle = 3 * time.Second
)

type typingEntry struct {
	TypingIndicator
	seen time.Time
}

// TypingTracker holds the ephemeral set of users currently typing, unique per
// (user, workspace, conversation). It is safe for concurrent use.
type TypingTracker struct {
	mu      sync.Mutex
	entries []typingEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewTypingTracker creates a tracker. A positive ttl expires entries that have
// not been refreshed within it; zero keeps them until removed.
func NewTypingTracker(ttl time.Duration) *TypingTracker {
	return &TypingTracker{ttl: ttl, now: time.Now}
}

// Add inserts ind unless an entry with the same key exists, in which case the
// existing entry is refreshed. It reports whether a new entry was created.
func (t *TypingTracker) Add(ind TypingIndicator) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()

	now := t.now()
	for i := range t.entries {
		if t.entries[i].TypingIndicator == ind {
			t.entries[i].seen = now
			return false
		}
	}
	t.entries = append(t.entries, typingEntry{TypingIndicator: ind, seen: now})
	return true
}

// RemoveUser drops every entry for userID in every workspace and conversation.
func (t *TypingTracker) RemoveUser(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.entries[:0]
	removed := 0
	for _, e := range t.entries {
		if e.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return removed
}

// Users returns the ids of users typing in one conversation, in arrival order.
func (t *TypingTracker) Users(workspaceID string, conv Conversation) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()

	var out []string
	for _, e := range t.entries {
		if e.WorkspaceID == workspaceID && e.Conversation == conv {
			out = append(out, e.UserID)
		}
	}
	return out
}

// All returns a snapshot of every live entry.
func (t *TypingTracker) All() []TypingIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expireLocked()

	out := make([]TypingIndicator, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.TypingIndicator
	}
	return out
}

func (t *TypingTracker) Clear() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}

func (t *TypingTracker) expireLocked() {
	if t.ttl <= 0 {
		return
	}
	cutoff := t.now().Add(-t.ttl)
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.seen.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}
