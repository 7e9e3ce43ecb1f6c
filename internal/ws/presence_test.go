package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceRegisterResolve(t *testing.T) {
	p := NewPresence()
	c := &Client{ID: "conn-1", UserID: "alice"}

	assert.False(t, p.IsOnline("alice"))

	p.Register(c)
	assert.True(t, p.IsOnline("alice"))
	assert.Same(t, c, p.Resolve("alice"))
	assert.Nil(t, p.Resolve("bob"))
}

func TestPresenceLastConnectWins(t *testing.T) {
	p := NewPresence()
	old := &Client{ID: "conn-1", UserID: "alice"}
	fresh := &Client{ID: "conn-2", UserID: "alice"}

	p.Register(old)
	p.Register(fresh)
	assert.Same(t, fresh, p.Resolve("alice"))

	// The replaced connection's teardown must not evict the live one.
	assert.False(t, p.Unregister(old))
	assert.True(t, p.IsOnline("alice"))
	assert.Same(t, fresh, p.Resolve("alice"))

	assert.True(t, p.Unregister(fresh))
	assert.False(t, p.IsOnline("alice"))
}

func TestPresenceUnregisterUnknown(t *testing.T) {
	p := NewPresence()
	assert.False(t, p.Unregister(&Client{ID: "conn-1", UserID: "ghost"}))
}
