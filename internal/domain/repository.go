package domain

import (
	"context"
	"sort"
	"strings"
	"time"
)

// PrivateConversationKey derives the stable identity of a private conversation
// from its two participants. The key is commutative: both orderings of the
// pair produce the same key, so concurrent first-contact sends from either
// side converge on one session.
func PrivateConversationKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, offset, limit int) ([]*User, error)
}

// MessageRepository defines persistence operations for messages. Mutations are
// single-document atomic; MarkRead and MarkDelivered never regress status.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListDirect returns the private history between two users as seen by
	// viewerID (messages soft-deleted for the viewer are excluded), ordered
	// oldest to newest, plus the total visible count.
	ListDirect(ctx context.Context, userA, userB, viewerID string, offset, limit int) ([]*Message, int, error)
	ListGroup(ctx context.Context, groupID, viewerID string, offset, limit int) ([]*Message, int, error)
	MarkRead(ctx context.Context, id, readerID string, at time.Time) error
	MarkDelivered(ctx context.Context, id, userID string) error
	AddDeletedFor(ctx context.Context, id, userID string) error
	SetContent(ctx context.Context, id, content string, editedAt time.Time) error
	// CountUnreadDirect counts direct messages addressed to userID not yet
	// read and not deleted for them; CountUnreadGroup does the same across
	// the given group memberships. Together they are the ground truth the
	// session unread counters cache.
	CountUnreadDirect(ctx context.Context, userID string) (int, error)
	CountUnreadGroup(ctx context.Context, userID string, groupIDs []string) (int, error)
	CountUnreadInSession(ctx context.Context, sessionID, userID string) (int, error)
}

// SessionRepository defines persistence operations for chat sessions.
type SessionRepository interface {
	// FindOrCreatePrivate resolves the single session for the unordered pair
	// (userA, userB) via an atomic upsert keyed on the conversation key.
	FindOrCreatePrivate(ctx context.Context, userA, userB string) (*ChatSession, error)
	CreateGroupSession(ctx context.Context, s *ChatSession) error
	GetByID(ctx context.Context, id string) (*ChatSession, error)
	GetByGroupID(ctx context.Context, groupID string) (*ChatSession, error)
	ListForUser(ctx context.Context, userID string, offset, limit int) ([]*ChatSession, int, error)
	// RecordMessage sets the last-message pointer and activity timestamp and
	// increments the unread counter of every participant except the sender.
	RecordMessage(ctx context.Context, sessionID, messageID, senderID string, at time.Time) error
	// ResetUnread zeroes the counter for one participant and stamps their
	// last-seen time.
	ResetUnread(ctx context.Context, sessionID, userID string) error
	SetUnread(ctx context.Context, sessionID, userID string, n int) error
	SumUnreadForUser(ctx context.Context, userID string) (int, error)
	UpdateSettings(ctx context.Context, sessionID, userID string, settings ParticipantSettings) error
	AddParticipant(ctx context.Context, sessionID string, p SessionParticipant) error
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
}

// GroupRepository defines persistence operations for groups.
type GroupRepository interface {
	// Create persists a new group; returns ErrConflict if the invite code is
	// already taken (callers regenerate and retry).
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id string) (*Group, error)
	GetByInviteCode(ctx context.Context, code string) (*Group, error)
	ListForUser(ctx context.Context, userID string) ([]*Group, error)
	AddMember(ctx context.Context, groupID string, m GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	SetMemberRole(ctx context.Context, groupID, userID string, role ParticipantRole, isAdmin bool) error
	IncrementMessageCount(ctx context.Context, groupID string) error
	SetActive(ctx context.Context, groupID string, active bool) error
}
