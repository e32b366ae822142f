package session

import (
	"sort"
	"sync"

	"github.com/rs/xid"
)

// Registry is the process-wide index of live sessions, backing the admin
// API's device list. Sessions register on accept and deregister on close.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session and returns its handle.
func (r *Registry) Add(s *Session) string {
	id := xid.New().String()

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return id
}

// Remove deregisters a session. Unknown handles are ignored.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshots returns a point-in-time view of every live session, ordered by
// connect time then remote address for stable output.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].Remote < out[j].Remote
	})
	return out
}
