package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(discardLogger(), nil)

	cfg := Config{MaxFailures: 3, Timeout: time.Second, MaxRequests: 2}

	cb1 := m.GetOrCreate("product-service", cfg)
	require.NotNil(t, cb1)
	assert.Equal(t, "product-service", cb1.Name())

	// повторный вызов возвращает тот же экземпляр
	assert.Same(t, cb1, m.GetOrCreate("product-service", cfg))

	cb2 := m.GetOrCreate("auth-service", cfg)
	assert.NotSame(t, cb1, cb2)

	assert.Same(t, cb2, m.Get("auth-service"))
	assert.Nil(t, m.Get("missing"))
}

func TestManager_Snapshots(t *testing.T) {
	m := NewManager(discardLogger(), nil)
	m.GetOrCreate("b", Config{})
	m.GetOrCreate("a", Config{})

	snaps := m.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "a", snaps[0].Name)
	assert.Equal(t, "b", snaps[1].Name)
	assert.Equal(t, "closed", snaps[0].State)
}

func TestManager_Reset(t *testing.T) {
	m := NewManager(discardLogger(), nil)
	cb := m.GetOrCreate("product-service", Config{MaxFailures: 1, Timeout: time.Minute})

	_ = cb.Execute(fail)
	require.Equal(t, StateOpen, cb.State())

	assert.True(t, m.Reset("product-service"))
	assert.Equal(t, StateClosed, cb.State())
	assert.False(t, m.Reset("missing"))

	_ = cb.Execute(fail)
	m.ResetAll()
	assert.Equal(t, StateClosed, cb.State())
}

func TestManager_PropagatesStateChangeCallback(t *testing.T) {
	changes := make(chan string, 1)
	m := NewManager(discardLogger(), func(name string, from, to State) {
		changes <- name + ":" + to.String()
	})

	cb := m.GetOrCreate("product-service", Config{MaxFailures: 1, Timeout: time.Minute})
	_ = cb.Execute(fail)

	select {
	case c := <-changes:
		assert.Equal(t, "product-service:open", c)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
}
