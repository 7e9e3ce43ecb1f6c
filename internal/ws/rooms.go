package ws

import (
	"sync"

	"ripple/internal/domain"
)

// PrivateRoom derives the broadcast room for a pair of users. Commutative in
// its arguments, so both participants converge on the same room without
// coordination.
func PrivateRoom(userA, userB string) string {
	return "dm:" + domain.PrivateConversationKey(userA, userB)
}

// GroupRoom derives the broadcast room for a group conversation.
func GroupRoom(groupID string) string {
	return "group:" + groupID
}

// Rooms tracks which connections joined which conversation rooms, for
// fan-out of ephemeral signals (typing, receipts).
type Rooms struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
	}
}

// Join adds c to the room. Idempotent.
func (r *Rooms) Join(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[*Client]struct{})
	}
	r.rooms[room][c] = struct{}{}
	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][room] = struct{}{}
}

// Leave removes c from the room. Idempotent.
func (r *Rooms) Leave(room string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, c)
}

func (r *Rooms) leaveLocked(room string, c *Client) {
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, c)
		}
	}
}

// LeaveAll removes c from every room it joined; called on disconnect.
func (r *Rooms) LeaveAll(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[c] {
		r.leaveLocked(room, c)
	}
}

// Broadcast sends the payload to every room member except the excluded one.
func (r *Rooms) Broadcast(room string, payload any, except *Client) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range members {
		_ = c.Send(payload)
	}
}
