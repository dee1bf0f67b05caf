// Package registry tracks which users are online and through which sessions.
package registry

import (
	"errors"
	"hash/fnv"
	"sync"
)

var ErrSessionBufferFull = errors.New("session send buffer full")

// Event is one server->client frame.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Session is a live transport connection. Send must not block: implementations
// enqueue onto their own outbound queue.
type Session interface {
	ID() string
	UserID() string
	Send(ev Event) error
	Close() error
}

const shardCount = 16

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Session // userID -> sessionID -> session
}

// Registry is safe for concurrent use. The zero value is not usable; call New.
type Registry struct {
	shards [shardCount]*shard
}

func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]Session)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register adds s under userID. A session with the same id replaces the old
// handle, which is returned so the caller can close it.
func (r *Registry) Register(userID, sessionID string, s Session) (replaced Session) {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.users[userID]
	if !ok {
		set = make(map[string]Session)
		sh.users[userID] = set
	}
	if prev, ok := set[sessionID]; ok && prev != s {
		replaced = prev
	}
	set[sessionID] = s
	return replaced
}

// Unregister removes exactly (userID, sessionID) and reports how many sessions
// the user still has. Unknown sessions are a no-op.
func (r *Registry) Unregister(userID, sessionID string) (remaining int) {
	sh := r.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.users[userID]
	if !ok {
		return 0
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(sh.users, userID)
		return 0
	}
	return len(set)
}

// UnregisterSession removes s only if it is still the registered handle for its
// id, so a stale disconnect cannot evict a newer reconnect.
func (r *Registry) UnregisterSession(s Session) (remaining int, removed bool) {
	sh := r.shardFor(s.UserID())
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.users[s.UserID()]
	if !ok {
		return 0, false
	}
	if cur, ok := set[s.ID()]; !ok || cur != s {
		return len(set), false
	}
	delete(set, s.ID())
	if len(set) == 0 {
		delete(sh.users, s.UserID())
	}
	return len(set), true
}

// SessionsFor returns a snapshot of the user's live sessions; empty means offline.
func (r *Registry) SessionsFor(userID string) []Session {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	set := sh.users[userID]
	out := make([]Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Online(userID string) bool {
	sh := r.shardFor(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.users[userID]) > 0
}

// Stats returns the number of online users and live sessions.
func (r *Registry) Stats() (users, sessions int) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		users += len(sh.users)
		for _, set := range sh.users {
			sessions += len(set)
		}
		sh.mu.RUnlock()
	}
	return users, sessions
}

// Close closes every live session and empties the registry. Used at shutdown.
func (r *Registry) Close() {
	var all []Session
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, set := range sh.users {
			for _, s := range set {
				all = append(all, s)
			}
		}
		sh.users = make(map[string]map[string]Session)
		sh.mu.Unlock()
	}
	for _, s := range all {
		_ = s.Close()
	}
}

// Deliver sends ev to every session in sessions, skipping skipID. It returns the
// number of successful enqueues and the per-session errors.
func Deliver(sessions []Session, skipID string, ev Event) (delivered int, errs []error) {
	for _, s := range sessions {
		if skipID != "" && s.ID() == skipID {
			continue
		}
		if err := s.Send(ev); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errs
}
