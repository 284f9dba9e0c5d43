package memory

import (
	"sync"

	"tournament-service/internal/app"
)

// Registry is the in-memory implementation of app.SessionRegistry. Sessions
// are process-scoped and live until explicit finalization removes them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*app.Session),
	}
}

func (r *Registry) Put(session *app.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Code] = session
}

func (r *Registry) Get(code string) (*app.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[code]
	return session, ok
}

func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}
