package registrytest

import (
	"sync"

	"github.com/cwrk-planet/comms-service/internal/registry"
)

// Recorder is an in-memory Session that keeps every event it receives.
// It never blocks, which makes fan-out deterministic in tests.
type Recorder struct {
	id, user string

	mu     sync.Mutex
	events []registry.Event
	closed bool
	fail   error
}

func NewRecorder(userID, sessionID string) *Recorder {
	return &Recorder{id: sessionID, user: userID}
}

func (r *Recorder) ID() string     { return r.id }
func (r *Recorder) UserID() string { return r.user }

func (r *Recorder) Send(ev registry.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// FailWith makes every subsequent Send return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *Recorder) Events() []registry.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]registry.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
