package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/comms-service/internal/registry"
	"github.com/cwrk-planet/comms-service/internal/registry/registrytest"
)

func TestRegister_SameSessionIsIdempotent(t *testing.T) {
	r := registry.New()
	first := registrytest.NewRecorder("u1", "s1")
	second := registrytest.NewRecorder("u1", "s1")

	assert.Nil(t, r.Register("u1", "s1", first))
	replaced := r.Register("u1", "s1", second)

	require.Len(t, r.SessionsFor("u1"), 1)
	assert.Same(t, second, r.SessionsFor("u1")[0])
	assert.Same(t, first, replaced)

	// registering the same handle again replaces nothing
	assert.Nil(t, r.Register("u1", "s1", second))
	assert.Len(t, r.SessionsFor("u1"), 1)
}

func TestRegister_MultiDevice(t *testing.T) {
	r := registry.New()
	r.Register("u1", "phone", registrytest.NewRecorder("u1", "phone"))
	r.Register("u1", "web", registrytest.NewRecorder("u1", "web"))

	assert.Len(t, r.SessionsFor("u1"), 2)
	assert.True(t, r.Online("u1"))

	users, sessions := r.Stats()
	assert.Equal(t, 1, users)
	assert.Equal(t, 2, sessions)
}

func TestUnregister(t *testing.T) {
	r := registry.New()
	r.Register("u1", "a", registrytest.NewRecorder("u1", "a"))
	r.Register("u1", "b", registrytest.NewRecorder("u1", "b"))
	r.Register("u2", "c", registrytest.NewRecorder("u2", "c"))

	assert.Equal(t, 1, r.Unregister("u1", "a"))
	assert.Equal(t, 0, r.Unregister("u1", "b"))
	assert.False(t, r.Online("u1"))
	assert.Empty(t, r.SessionsFor("u1"))

	t.Run("missing session is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			assert.Equal(t, 0, r.Unregister("u1", "a"))
			assert.Equal(t, 0, r.Unregister("ghost", "x"))
			assert.Equal(t, 1, r.Unregister("u2", "nope"))
		})
		assert.Len(t, r.SessionsFor("u2"), 1)
	})
}

func TestUnregisterSession_IgnoresStaleHandle(t *testing.T) {
	r := registry.New()
	old := registrytest.NewRecorder("u1", "s1")
	fresh := registrytest.NewRecorder("u1", "s1")
	r.Register("u1", "s1", old)
	r.Register("u1", "s1", fresh)

	remaining, removed := r.UnregisterSession(old)
	assert.False(t, removed)
	assert.Equal(t, 1, remaining)
	assert.True(t, r.Online("u1"))

	remaining, removed = r.UnregisterSession(fresh)
	assert.True(t, removed)
	assert.Equal(t, 0, remaining)
}

func TestDeliver_SkipsOriginAndCountsFailures(t *testing.T) {
	a := registrytest.NewRecorder("u1", "a")
	b := registrytest.NewRecorder("u1", "b")
	c := registrytest.NewRecorder("u1", "c")
	c.FailWith(registry.ErrSessionBufferFull)

	n, errs := registry.Deliver([]registry.Session{a, b, c}, "a", registry.Event{Type: "Ping"})
	assert.Equal(t, 1, n)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], registry.ErrSessionBufferFull))
	assert.Empty(t, a.Events())
	assert.Len(t, b.Events(), 1)
}

func TestClose_ClosesAllSessions(t *testing.T) {
	r := registry.New()
	a := registrytest.NewRecorder("u1", "a")
	b := registrytest.NewRecorder("u2", "b")
	r.Register("u1", "a", a)
	r.Register("u2", "b", b)

	r.Close()

	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	users, _ := r.Stats()
	assert.Zero(t, users)
}

func TestConcurrentAccess(t *testing.T) {
	r := registry.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%5)
			sid := fmt.Sprintf("s%d", i)
			r.Register(user, sid, registrytest.NewRecorder(user, sid))
			_ = r.SessionsFor(user)
			if i%2 == 0 {
				r.Unregister(user, sid)
			}
		}(i)
	}
	wg.Wait()

	_, sessions := r.Stats()
	assert.Equal(t, 25, sessions)
}
