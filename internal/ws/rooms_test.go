package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrivateRoomCommutative(t *testing.T) {
	assert.Equal(t, PrivateRoom("alice", "bob"), PrivateRoom("bob", "alice"))
	assert.NotEqual(t, PrivateRoom("alice", "bob"), PrivateRoom("alice", "carol"))
}

func TestRoomsJoinLeave(t *testing.T) {
	r := NewRooms()
	a := &Client{ID: "conn-a", UserID: "alice"}
	b := &Client{ID: "conn-b", UserID: "bob"}
	room := PrivateRoom("alice", "bob")

	r.Join(room, a)
	r.Join(room, a) // idempotent
	r.Join(room, b)
	assert.Len(t, r.rooms[room], 2)

	r.Leave(room, a)
	r.Leave(room, a) // idempotent
	assert.Len(t, r.rooms[room], 1)

	// Empty rooms are garbage collected.
	r.Leave(room, b)
	_, exists := r.rooms[room]
	assert.False(t, exists)
}

func TestRoomsLeaveAll(t *testing.T) {
	r := NewRooms()
	a := &Client{ID: "conn-a", UserID: "alice"}
	b := &Client{ID: "conn-b", UserID: "bob"}

	r.Join("dm:one", a)
	r.Join("group:two", a)
	r.Join("group:two", b)

	r.LeaveAll(a)
	_, exists := r.joined[a]
	assert.False(t, exists)
	assert.Len(t, r.rooms["group:two"], 1)
	_, exists = r.rooms["dm:one"]
	assert.False(t, exists)
}
