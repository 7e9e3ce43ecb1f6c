package ws

import "sync"

// Presence is the process-local routing table mapping a user to their one
// authoritative live connection. Later connections for the same user replace
// the registration (last-connect-wins). Nothing here is persisted; a restart
// empties the table and clients rebuild it by reconnecting.
type Presence struct {
	mu      sync.RWMutex
	entries map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{entries: make(map[string]*Client)}
}

// Register makes c the authoritative connection for its user, replacing any
// prior handle.
func (p *Presence) Register(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[c.UserID] = c
}

// Unregister removes the mapping only if c is still the registered handle.
// A stale disconnect from a replaced connection must not evict the live one.
// Reports whether the user went offline.
func (p *Presence) Unregister(c *Client) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.entries[c.UserID]; ok && cur == c {
		delete(p.entries, c.UserID)
		return true
	}
	return false
}

// Resolve returns the live connection for userID, or nil.
func (p *Presence) Resolve(userID string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[userID]
}

func (p *Presence) IsOnline(userID string) bool {
	return p.Resolve(userID) != nil
}

// Broadcast sends the payload to every live connection except the excluded
// one. Write failures are left to the failing connection's own read loop to
// notice.
func (p *Presence) Broadcast(payload any, except *Client) {
	p.mu.RLock()
	clients := make([]*Client, 0, len(p.entries))
	for _, c := range p.entries {
		if c != except {
			clients = append(clients, c)
		}
	}
	p.mu.RUnlock()

	for _, c := range clients {
		_ = c.Send(payload)
	}
}
