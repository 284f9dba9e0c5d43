package redis

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tournament-service/internal/app"
)

// Registry is a Redis-aware implementation of app.SessionRegistry.
// Notes:
//   - Sessions hold live timer handles, so the mutable record stays in a
//     local in-process map; the design assumes single-process ownership of a
//     session for its whole lifetime.
//   - Redis marks session liveness so operational tooling can list running
//     tournaments across restarts of everything else.
type Registry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (r *Registry) Put(session *app.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Code] = session
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(session.Code), "1", r.ttl).Err()
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
	_ = r.client.Del(context.Background(), r.key(code)).Err()
}

func (r *Registry) key(code string) string {
	return "tournament:session:" + code
}

func batchKey(uids []string) string {
	sorted := make([]string, len(uids))
	copy(sorted, uids)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
